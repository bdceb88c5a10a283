package library

import (
	"net/url"
	"path"
	"sort"
	"strconv"
)

// ManifestFile is the name of the library index inside a library
// directory.
const ManifestFile = "templates.json"

// Manifest indexes every template version of a library.
type Manifest struct {
	Templates map[string]map[string]ManifestEntry `json:"templates"`
	// Used maps a ref to the refs of templates that instantiate it.
	Used map[string][]string `json:"used"`
}

// ManifestEntry describes one template version.
type ManifestEntry struct {
	File           string      `json:"file"`
	Span           []SpanEntry `json:"span"`
	PrimitiveCount int         `json:"primitive_count"`
}

// SpanEntry is one seeding span of a template.
type SpanEntry struct {
	Indices []int `json:"indices"`
	Size    int   `json:"size"`
	Matches []int `json:"matches"`
}

func templateFile(ref string, version int) string {
	return path.Join("templates", url.PathEscape(ref), strconv.Itoa(version)+".json")
}

func dumpFile(ref string, version int) string {
	return path.Join("graphs", url.PathEscape(ref), strconv.Itoa(version)+".sexp")
}

// buildManifest indexes the given templates.
func buildManifest(templates []*Template) *Manifest {
	m := &Manifest{
		Templates: make(map[string]map[string]ManifestEntry),
		Used:      make(map[string][]string),
	}
	used := make(map[string]map[string]bool)
	for _, t := range templates {
		versions := m.Templates[t.Ref]
		if versions == nil {
			versions = make(map[string]ManifestEntry)
			m.Templates[t.Ref] = versions
		}
		spans := make([]SpanEntry, 0, len(t.PrimitiveSpan))
		for _, s := range t.PrimitiveSpan {
			spans = append(spans, SpanEntry{Indices: s, Size: len(s), Matches: []int{}})
		}
		versions[strconv.Itoa(t.Version)] = ManifestEntry{
			File:           templateFile(t.Ref, t.Version),
			Span:           spans,
			PrimitiveCount: t.PrimitiveCount,
		}
		for _, child := range t.Contains() {
			if used[child] == nil {
				used[child] = make(map[string]bool)
			}
			used[child][t.Ref] = true
		}
	}
	for child, parents := range used {
		list := make([]string, 0, len(parents))
		for p := range parents {
			list = append(list, p)
		}
		sort.Strings(list)
		m.Used[child] = list
	}
	return m
}

// versions returns the version numbers recorded for ref in ascending
// order.
func (m *Manifest) versions(ref string) []int {
	var out []int
	for k := range m.Templates[ref] {
		if v, err := strconv.Atoi(k); err == nil {
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}
