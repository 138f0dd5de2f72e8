package domain

import (
	"path/filepath"
	"strings"
)

// Batch is the full set of files under consideration for one pipeline run,
// plus the track logs found next to them.
type Batch struct {
	Roots      []string
	Records    []*PhotoRecord
	TrackFiles []string
}

// RootFor returns the input root the given path was scanned under, by
// longest ancestor match. Records keep moving between directories during a
// run, so the match is against path ancestry rather than stored state. A
// root only matches on a path separator boundary, so /photos never claims
// files under /photos2.
func (b *Batch) RootFor(path string) string {
	best := ""
	for _, root := range b.Roots {
		trimmed := strings.TrimSuffix(root, string(filepath.Separator))
		if path != trimmed && !strings.HasPrefix(path, trimmed+string(filepath.Separator)) {
			continue
		}
		if len(trimmed) > len(best) {
			best = trimmed
		}
	}
	if best == "" && len(b.Roots) > 0 {
		return b.Roots[0]
	}
	return best
}

// Healthy returns the records that have not failed any stage so far.
func (b *Batch) Healthy() []*PhotoRecord {
	var healthy []*PhotoRecord
	for _, rec := range b.Records {
		if rec.Healthy() {
			healthy = append(healthy, rec)
		}
	}
	return healthy
}

// Dirs returns the distinct parent directories of the healthy records, in
// stable order.
func (b *Batch) Dirs() []string {
	seen := map[string]bool{}
	var dirs []string
	for _, rec := range b.Healthy() {
		dir := filepath.Dir(rec.SourcePath)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	return dirs
}
