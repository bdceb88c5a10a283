package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// ErrUnknownTemplate is returned when a ref/version pair is not in the
// library.
var ErrUnknownTemplate = errors.New("library: unknown template")

// Source is the read-only view of a library used during search.
type Source interface {
	Refs() []string
	Versions(ref string) []int
	Template(ref string, version int) (*Template, error)
	Containers(ref string) []string
}

type templateKey struct {
	ref     string
	version int
}

// Library is a template library backed by a directory, or held entirely
// in memory. Templates are loaded on first use and cached; it is safe for
// concurrent use.
type Library struct {
	dir      string
	manifest *Manifest

	mu    sync.RWMutex
	cache map[templateKey]*Template
}

// NewMemory creates a library holding the given templates.
func NewMemory(templates ...*Template) *Library {
	l := &Library{
		manifest: buildManifest(templates),
		cache:    make(map[templateKey]*Template, len(templates)),
	}
	for _, t := range templates {
		l.cache[templateKey{t.Ref, t.Version}] = t
	}
	return l
}

// Open reads the manifest of the library stored in dir.
func Open(dir string) (*Library, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("library: read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("library: parse manifest: %w", err)
	}
	if m.Templates == nil {
		m.Templates = make(map[string]map[string]ManifestEntry)
	}
	if m.Used == nil {
		m.Used = make(map[string][]string)
	}
	return &Library{
		dir:      dir,
		manifest: &m,
		cache:    make(map[templateKey]*Template),
	}, nil
}

// Dir returns the library directory, or "" for an in-memory library.
func (l *Library) Dir() string {
	return l.dir
}

// Manifest returns the library index.
func (l *Library) Manifest() *Manifest {
	return l.manifest
}

// Refs returns every template ref in sorted order.
func (l *Library) Refs() []string {
	refs := make([]string, 0, len(l.manifest.Templates))
	for ref := range l.manifest.Templates {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

// Versions returns the versions of ref in ascending order.
func (l *Library) Versions(ref string) []int {
	return l.manifest.versions(ref)
}

// Containers returns the refs of templates that instantiate ref.
func (l *Library) Containers(ref string) []string {
	return l.manifest.Used[ref]
}

// Template returns a template version. The returned template is shared;
// callers must clone its graph before modifying it.
func (l *Library) Template(ref string, version int) (*Template, error) {
	key := templateKey{ref, version}
	l.mu.RLock()
	t, ok := l.cache[key]
	l.mu.RUnlock()
	if ok {
		return t, nil
	}

	entry, ok := l.manifest.Templates[ref][strconv.Itoa(version)]
	if !ok || l.dir == "" {
		return nil, fmt.Errorf("%w: %s v%d", ErrUnknownTemplate, ref, version)
	}
	t, err := readTemplate(filepath.Join(l.dir, filepath.FromSlash(entry.File)))
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if cached, ok := l.cache[key]; ok {
		return cached, nil
	}
	l.cache[key] = t
	return t, nil
}

// All loads and returns every template, ordered by ref and version.
func (l *Library) All() ([]*Template, error) {
	var out []*Template
	for _, ref := range l.Refs() {
		for _, v := range l.Versions(ref) {
			t, err := l.Template(ref, v)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
	}
	return out, nil
}

// DumpFiles returns the paths of all graph dumps below the library
// directory.
func (l *Library) DumpFiles() ([]string, error) {
	if l.dir == "" {
		return nil, nil
	}
	root := filepath.Join(l.dir, "graphs")
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return fs.SkipDir
			}
			return walkErr
		}
		if d.IsDir() || !strings.HasSuffix(path, ".sexp") {
			return nil
		}
		out = append(out, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("library: walk %s: %w", root, err)
	}
	sort.Strings(out)
	return out, nil
}

func readTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("library: read %s: %w", path, err)
	}
	var t Template
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("library: parse %s: %w", path, err)
	}
	return &t, nil
}
