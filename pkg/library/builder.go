package library

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/OpenTraceLab/iprec/pkg/match"
	"github.com/OpenTraceLab/iprec/pkg/netgraph"
)

// Options configures a Builder.
type Options struct {
	Matcher *match.Matcher
	Import  netgraph.ImportOptions
	Logger  *slog.Logger
}

// Stats summarizes a build.
type Stats struct {
	Designs   int
	Skipped   int
	Instances int
	Created   int
	Merged    int
}

func (s *Stats) add(o Stats) {
	s.Designs += o.Designs
	s.Skipped += o.Skipped
	s.Instances += o.Instances
	s.Created += o.Created
	s.Merged += o.Merged
}

// Builder mines sample designs into a deduplicated template library.
type Builder struct {
	dir       string
	matcher   *match.Matcher
	importOpt netgraph.ImportOptions
	logger    *slog.Logger

	templates map[string][]*Template
	dirty     map[*Template]bool
}

// NewBuilder creates a builder writing to dir. Templates already present
// in dir are loaded so that new designs extend the existing library.
func NewBuilder(dir string, opts Options) (*Builder, error) {
	if opts.Matcher == nil {
		opts.Matcher = match.NewMatcher(match.DefaultOptions())
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Import.Logger == nil {
		opts.Import.Logger = opts.Logger
	}
	b := &Builder{
		dir:       dir,
		matcher:   opts.Matcher,
		importOpt: opts.Import,
		logger:    opts.Logger,
		templates: make(map[string][]*Template),
		dirty:     make(map[*Template]bool),
	}

	if _, err := os.Stat(filepath.Join(dir, ManifestFile)); err == nil {
		lib, err := Open(dir)
		if err != nil {
			return nil, err
		}
		all, err := lib.All()
		if err != nil {
			return nil, err
		}
		for _, t := range all {
			b.templates[t.Ref] = append(b.templates[t.Ref], t)
		}
		b.logger.Info("loaded existing library", "dir", dir, "templates", len(all))
	}
	return b, nil
}

// AddDesign extracts every hierarchical instance of g and merges it into
// the library.
func (b *Builder) AddDesign(g *netgraph.Graph) Stats {
	stats := Stats{Designs: 1}
	idx := indexDesign(g)
	designWide := harvestProperties(g)

	for _, v := range g.Vertices() {
		if v.IsPrimitive() {
			continue
		}
		sub, dropped := idx.Extract(v.ID)
		if dropped > 0 {
			b.logger.Debug("dropped edges leaving instance", "instance", v.Name, "count", dropped)
		}
		props := instanceProperties(designWide, v)
		stats.Instances++
		if b.merge(v.Ref, sub, props) {
			stats.Merged++
		} else {
			stats.Created++
		}
	}
	return stats
}

// merge adds sub as an instance of ref and reports whether it matched an
// existing version.
func (b *Builder) merge(ref string, sub *netgraph.Graph, props map[string]string) bool {
	for _, t := range b.templates[ref] {
		if !sameStructure(b.matcher, sub, t.Graph) {
			continue
		}
		if t.Widen(props) {
			b.dirty[t] = true
		}
		return true
	}
	t := NewTemplate(ref, len(b.templates[ref]), sub, b.matcher.IsConstant, props)
	b.templates[ref] = append(b.templates[ref], t)
	b.dirty[t] = true
	b.logger.Debug("new template version", "ref", ref, "version", t.Version, "vertices", sub.Len())
	return false
}

// AddDesignFile imports and adds one design file.
func (b *Builder) AddDesignFile(path string) (Stats, error) {
	g, err := netgraph.ImportFile(path, b.importOpt)
	if err != nil {
		return Stats{}, err
	}
	return b.AddDesign(g), nil
}

// BuildDir adds every JSON design below dir in sorted order. Files whose
// name contains "properties" are skipped. A design that cannot be read is
// logged and skipped.
func (b *Builder) BuildDir(ctx context.Context, dir string) (Stats, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !isDesignFile(path) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("library: walk %s: %w", dir, err)
	}
	sort.Strings(paths)

	var total Stats
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		s, err := b.AddDesignFile(path)
		if err != nil {
			b.logger.Warn("skipping design", "path", path, "error", err)
			total.Skipped++
			continue
		}
		b.logger.Info("added design", "path", path, "instances", s.Instances, "new", s.Created)
		total.add(s)
	}
	return total, nil
}

// Templates returns all templates ordered by ref and version.
func (b *Builder) Templates() []*Template {
	refs := make([]string, 0, len(b.templates))
	for ref := range b.templates {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	var out []*Template
	for _, ref := range refs {
		out = append(out, b.templates[ref]...)
	}
	return out
}

// Save writes changed templates, their graph dumps and the manifest.
func (b *Builder) Save() error {
	all := b.Templates()
	for _, t := range all {
		if !b.dirty[t] {
			continue
		}
		if err := b.writeTemplate(t); err != nil {
			return err
		}
		delete(b.dirty, t)
	}
	data, err := json.MarshalIndent(buildManifest(all), "", "  ")
	if err != nil {
		return fmt.Errorf("library: encode manifest: %w", err)
	}
	if err := os.MkdirAll(b.dir, 0755); err != nil {
		return fmt.Errorf("library: create %s: %w", b.dir, err)
	}
	if err := os.WriteFile(filepath.Join(b.dir, ManifestFile), data, 0644); err != nil {
		return fmt.Errorf("library: write manifest: %w", err)
	}
	return nil
}

// Library returns an in-memory view of the templates built so far.
func (b *Builder) Library() *Library {
	return NewMemory(b.Templates()...)
}

func (b *Builder) writeTemplate(t *Template) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("library: encode %s v%d: %w", t.Ref, t.Version, err)
	}
	path := filepath.Join(b.dir, filepath.FromSlash(templateFile(t.Ref, t.Version)))
	if err := writeFile(path, data); err != nil {
		return err
	}

	dump := filepath.Join(b.dir, filepath.FromSlash(dumpFile(t.Ref, t.Version)))
	if err := os.MkdirAll(filepath.Dir(dump), 0755); err != nil {
		return fmt.Errorf("library: create %s: %w", filepath.Dir(dump), err)
	}
	f, err := os.Create(dump)
	if err != nil {
		return fmt.Errorf("library: create %s: %w", dump, err)
	}
	defer f.Close()
	if err := t.Graph.WriteSexp(f, fmt.Sprintf("%s v%d", t.Ref, t.Version)); err != nil {
		return fmt.Errorf("library: write %s: %w", dump, err)
	}
	return nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("library: create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("library: write %s: %w", path, err)
	}
	return nil
}

func isDesignFile(path string) bool {
	base := filepath.Base(path)
	if strings.Contains(base, "properties") {
		return false
	}
	return strings.EqualFold(filepath.Ext(base), ".json")
}
