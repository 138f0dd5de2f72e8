package plan

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"photoproc/internal/domain"
	apperrors "photoproc/internal/errors"
	"photoproc/internal/logging"
)

// Target filename layout, derived from the resolved capture timestamp.
// Collisions within the same second get a "_2", "_3", ... suffix.
const (
	nameLayout = "2006-01-02 15.04.05"
	dirLayout  = "2006-01-02"
)

// FileSystem is the read-only view the planner needs. The planner never
// mutates anything; it only produces a mapping for the orchestrator to
// apply.
type FileSystem interface {
	Exists(path string) (bool, error)
}

type Planner struct {
	FS     FileSystem
	Logger logging.Logger
}

// Rename maps every record to "<dir>/<date time>[_N]<ext>" next to its
// current location. Records without a usable timestamp are left out; the
// stage that runs the planner has already failed them individually.
func (p *Planner) Rename(records []*domain.PhotoRecord) (domain.RenamePlan, error) {
	stop := p.Logger.Measure("Planning rename")
	defer stop()

	return p.build(records, func(rec *domain.PhotoRecord, ts time.Time) (string, string) {
		return filepath.Dir(rec.SourcePath), ts.Format(nameLayout) + rec.Ext
	})
}

// Organize maps every record into one directory per calendar day under
// root, keeping the original filename.
func (p *Planner) Organize(records []*domain.PhotoRecord, root string) (domain.RenamePlan, error) {
	stop := p.Logger.Measure("Planning organize")
	defer stop()

	return p.build(records, func(rec *domain.PhotoRecord, ts time.Time) (string, string) {
		return filepath.Join(root, ts.Format(dirLayout)), rec.Name
	})
}

type candidate struct {
	rec    *domain.PhotoRecord
	source string
	dir    string
	name   string
}

func (p *Planner) build(records []*domain.PhotoRecord, target func(*domain.PhotoRecord, time.Time) (string, string)) (domain.RenamePlan, error) {
	if p.FS == nil {
		return domain.RenamePlan{}, apperrors.New(apperrors.Internal, "plan", "", "planner requires FS")
	}

	seenSource := map[string]bool{}
	var candidates []candidate
	for _, rec := range records {
		ts := rec.Timestamp()
		if ts.IsZero() {
			continue
		}
		if seenSource[rec.SourcePath] {
			return domain.RenamePlan{}, apperrors.New(apperrors.Planning, "plan", rec.SourcePath, "duplicate source path")
		}
		seenSource[rec.SourcePath] = true

		dir, name := target(rec, ts)
		candidates = append(candidates, candidate{rec: rec, source: rec.SourcePath, dir: dir, name: name})
	}

	items := disambiguate(candidates)

	targets := map[string]string{}
	for _, item := range items {
		if prev, taken := targets[item.TargetPath]; taken {
			return domain.RenamePlan{}, apperrors.New(apperrors.Planning, "plan", item.TargetPath,
				fmt.Sprintf("unresolvable collision between %s and %s", prev, item.SourcePath))
		}
		targets[item.TargetPath] = item.SourcePath
	}

	// A target that already exists on disk may only be one of our own
	// sources (its move is ordered first); anything else would be
	// silently overwritten.
	for _, item := range items {
		if item.TargetPath == item.SourcePath {
			continue
		}
		if seenSource[item.TargetPath] {
			continue
		}
		exists, err := p.FS.Exists(item.TargetPath)
		if err != nil {
			return domain.RenamePlan{}, apperrors.Wrap(apperrors.IOFailure, "plan", item.TargetPath, err)
		}
		if exists {
			return domain.RenamePlan{}, apperrors.New(apperrors.Planning, "plan", item.TargetPath, "target already exists")
		}
	}

	ordered, err := order(items)
	if err != nil {
		return domain.RenamePlan{}, err
	}

	p.Logger.Verbosef("Planned %d targets (%d moves)", len(ordered), len(domain.RenamePlan{Items: ordered}.Moves()))
	return domain.RenamePlan{Items: ordered}, nil
}

// disambiguate resolves same-target groups with a stable sequence suffix
// ordered by original filename, never by scan order, so plans reproduce
// across runs.
func disambiguate(candidates []candidate) []domain.RenameItem {
	groups := map[string][]candidate{}
	var keys []string
	for _, cand := range candidates {
		key := filepath.Join(cand.dir, cand.name)
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], cand)
	}
	sort.Strings(keys)

	var items []domain.RenameItem
	for _, key := range keys {
		group := groups[key]
		sort.Slice(group, func(i, j int) bool {
			if group[i].rec.Name == group[j].rec.Name {
				return group[i].source < group[j].source
			}
			return group[i].rec.Name < group[j].rec.Name
		})
		for i, cand := range group {
			name := cand.name
			if i > 0 {
				ext := filepath.Ext(name)
				name = fmt.Sprintf("%s_%d%s", name[:len(name)-len(ext)], i+1, ext)
			}
			items = append(items, domain.RenameItem{
				Record:     cand.rec,
				SourcePath: cand.source,
				TargetPath: filepath.Join(cand.dir, name),
			})
		}
	}
	return items
}

// order sorts items so every move lands before any move that needs its
// source slot freed. A residual dependency loop means two records would
// swap paths, which cannot be applied without clobbering one of them.
func order(items []domain.RenameItem) ([]domain.RenameItem, error) {
	pendingSource := map[string]bool{}
	for _, item := range items {
		if item.SourcePath != item.TargetPath {
			pendingSource[item.SourcePath] = true
		}
	}

	remaining := append([]domain.RenameItem(nil), items...)
	sort.Slice(remaining, func(i, j int) bool { return remaining[i].SourcePath < remaining[j].SourcePath })

	var ordered []domain.RenameItem
	for len(remaining) > 0 {
		progressed := false
		var stuck []domain.RenameItem
		for _, item := range remaining {
			blocked := item.SourcePath != item.TargetPath && pendingSource[item.TargetPath]
			if blocked {
				stuck = append(stuck, item)
				continue
			}
			ordered = append(ordered, item)
			delete(pendingSource, item.SourcePath)
			progressed = true
		}
		if !progressed {
			return nil, apperrors.New(apperrors.Planning, "plan", stuck[0].SourcePath, "rename cycle detected")
		}
		remaining = stuck
	}
	return ordered, nil
}
