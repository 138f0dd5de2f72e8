package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"photoproc/internal/domain"
	apperrors "photoproc/internal/errors"
	"photoproc/internal/plan"
	"photoproc/internal/shift"
	"photoproc/internal/timezone"
)

func (o *Orchestrator) runShiftToUTC(ctx context.Context, batch *domain.Batch, opts Options) error {
	records := eligible(batch, domain.StageShiftToUTC)
	if len(records) == 0 {
		return nil
	}

	engine := shift.Engine{}
	if opts.Timezone != "" {
		// Explicit input is authoritative; no metadata inference here.
		offset, err := o.Resolver.Resolve(opts.Timezone)
		if err != nil {
			return err
		}
		o.Logger.Infof("Shifting to UTC by %s (%s)", domain.FormatOffset(-offset.Minutes), offset.Label)
		engine.ShiftBatch(records, offset, shift.ToUTC, domain.StageShiftToUTC)
	} else {
		byDir := groupByDir(records)
		for _, dir := range sortedKeys(byDir) {
			if err := ctx.Err(); err != nil {
				return err
			}
			dirRecords := byDir[dir]
			offset, err := o.detectOffset(ctx, dirRecords)
			if err != nil {
				if apperrors.Is(err, apperrors.ToolFailure) {
					return err
				}
				o.Logger.Warnf("%s: could not detect offset: %v", dir, err)
				for _, rec := range dirRecords {
					rec.MarkFailed(domain.StageShiftToUTC, apperrors.UnknownTimezone, err.Error())
				}
				continue
			}
			o.Logger.Infof("%s: detected offset %s, shifting to UTC by %s", dir, offset, domain.FormatOffset(-offset.Minutes))
			engine.ShiftBatch(dirRecords, offset, shift.ToUTC, domain.StageShiftToUTC)
		}
	}

	if opts.DryRun {
		return nil
	}
	if o.Metadata == nil {
		return apperrors.New(apperrors.ToolFailure, "shift-to-utc", "", "no metadata tool configured")
	}
	return o.forEach(ctx, domain.StageShiftToUTC, succeededOf(records, domain.StageShiftToUTC), func(ctx context.Context, rec *domain.PhotoRecord) error {
		err := o.Metadata.WriteTimes(ctx, rec.SourcePath, TimeUpdate{
			AllDates:      rec.CaptureUTC,
			ClearTimezone: true,
		})
		if err != nil {
			if apperrors.Is(err, apperrors.ToolFailure) {
				return err
			}
			rec.MarkFailed(domain.StageShiftToUTC, apperrors.IOFailure, err.Error())
		}
		return nil
	})
}

// detectOffset reads timezone metadata from the first file of a directory,
// preferring OffsetTimeOriginal (which already includes DST) over the
// TimeZone tag plus the DaylightSavings flag.
func (o *Orchestrator) detectOffset(ctx context.Context, records []*domain.PhotoRecord) (domain.TimezoneOffset, error) {
	if o.Metadata == nil {
		return domain.TimezoneOffset{}, apperrors.New(apperrors.ToolFailure, "detect-offset", "", "no metadata tool configured")
	}

	probe := records[0]
	for _, rec := range records {
		if rec.Name < probe.Name {
			probe = rec
		}
	}

	tags, err := o.Metadata.ReadTags(ctx, probe.SourcePath)
	if err != nil {
		return domain.TimezoneOffset{}, err
	}

	switch {
	case tags.OffsetTimeOriginal != "":
		mins, err := timezone.ParseOffset(tags.OffsetTimeOriginal)
		if err != nil {
			return domain.TimezoneOffset{}, apperrors.Wrap(apperrors.UnknownTimezone, "detect-offset", probe.SourcePath, err)
		}
		return domain.TimezoneOffset{Minutes: mins, Label: tags.OffsetTimeOriginal}, nil
	case tags.TimeZone != "":
		mins, err := timezone.ParseOffset(tags.TimeZone)
		if err != nil {
			return domain.TimezoneOffset{}, apperrors.Wrap(apperrors.UnknownTimezone, "detect-offset", probe.SourcePath, err)
		}
		if tags.DaylightSavings {
			mins += 60
		}
		return domain.TimezoneOffset{Minutes: mins, Label: domain.FormatOffset(mins)}, nil
	default:
		return domain.TimezoneOffset{}, apperrors.New(apperrors.UnknownTimezone, "detect-offset", probe.SourcePath, "no timezone metadata")
	}
}

// DetectOffsets reports the detected camera timezone per directory without
// mutating anything. Used by the detect-timezone command.
func (o *Orchestrator) DetectOffsets(ctx context.Context, batch *domain.Batch) map[string]DetectedOffset {
	results := map[string]DetectedOffset{}
	byDir := groupByDir(batch.Records)
	for _, dir := range sortedKeys(byDir) {
		offset, err := o.detectOffset(ctx, byDir[dir])
		results[dir] = DetectedOffset{Offset: offset, Err: err}
	}
	return results
}

type DetectedOffset struct {
	Offset domain.TimezoneOffset
	Err    error
}

func (o *Orchestrator) runOrganize(ctx context.Context, batch *domain.Batch, opts Options) error {
	records := eligible(batch, domain.StageOrganize)
	if len(records) == 0 {
		return nil
	}

	planner := plan.Planner{FS: o.FS, Logger: o.Logger}

	byRoot := map[string][]*domain.PhotoRecord{}
	for _, rec := range records {
		root := batch.RootFor(rec.SourcePath)
		byRoot[root] = append(byRoot[root], rec)
	}

	for _, root := range sortedKeys(byRoot) {
		if err := ctx.Err(); err != nil {
			return err
		}
		renamePlan, err := planner.Organize(byRoot[root], root)
		if err != nil {
			return err
		}
		if err := o.apply(ctx, domain.StageOrganize, renamePlan, opts); err != nil {
			return err
		}
		if !opts.DryRun {
			if err := o.FS.RemoveEmptyDirs(root); err != nil {
				o.Logger.Warnf("could not prune empty directories under %s: %v", root, err)
			}
		}
	}
	return nil
}

func (o *Orchestrator) runGeotag(ctx context.Context, batch *domain.Batch, opts Options) error {
	records := eligible(batch, domain.StageGeotag)
	if len(records) == 0 {
		return nil
	}
	if len(batch.TrackFiles) == 0 {
		o.Logger.Infof("No track files found, skipping geotag.")
		for _, rec := range records {
			rec.MarkSkipped(domain.StageGeotag, "no track files")
		}
		return nil
	}
	if o.Geotagger == nil {
		return apperrors.New(apperrors.ToolFailure, "geotag", "", "no geotag tool configured")
	}

	byDir := groupByDir(records)
	for _, dir := range sortedKeys(byDir) {
		if err := ctx.Err(); err != nil {
			return err
		}
		dirRecords := byDir[dir]
		if opts.DryRun {
			for _, rec := range dirRecords {
				rec.MarkSkipped(domain.StageGeotag, "dry-run")
			}
			continue
		}
		o.Logger.Verbosef("Geotagging %d files in %s", len(dirRecords), dir)
		if err := o.Geotagger.Geotag(ctx, dir, batch.TrackFiles, opts.TimerangeSec); err != nil {
			if apperrors.Is(err, apperrors.ToolFailure) {
				return err
			}
			for _, rec := range dirRecords {
				rec.MarkFailed(domain.StageGeotag, apperrors.IOFailure, err.Error())
			}
			continue
		}
		for _, rec := range dirRecords {
			rec.MarkSuccess(domain.StageGeotag, "")
		}
	}

	if opts.DryRun || o.Metadata == nil {
		return nil
	}
	// Read the written coordinates back so the report carries them.
	return o.forEach(ctx, domain.StageGeotag, succeededOf(records, domain.StageGeotag), func(ctx context.Context, rec *domain.PhotoRecord) error {
		tags, err := o.Metadata.ReadTags(ctx, rec.SourcePath)
		if err != nil {
			if apperrors.Is(err, apperrors.ToolFailure) {
				return err
			}
			return nil
		}
		if tags.Latitude != nil && tags.Longitude != nil {
			rec.Coordinate = &domain.Coordinate{Lat: *tags.Latitude, Lon: *tags.Longitude}
			rec.MarkSuccess(domain.StageGeotag, fmt.Sprintf("%.5f,%.5f", *tags.Latitude, *tags.Longitude))
		} else {
			rec.MarkSuccess(domain.StageGeotag, "no track point within range")
		}
		return nil
	})
}

func (o *Orchestrator) runSetTime(ctx context.Context, batch *domain.Batch, opts Options) error {
	if opts.Timezone == "" {
		return apperrors.New(apperrors.UnknownTimezone, "set-time", "", "no timezone supplied")
	}
	base, err := o.Resolver.Resolve(opts.Timezone)
	if err != nil {
		return err
	}
	effective := base.WithDST(opts.DST)

	records := eligible(batch, domain.StageSetTime)
	if len(records) == 0 {
		return nil
	}

	o.Logger.Infof("Setting time and timezone to %s (%s, DST %v)", base.Label, base, opts.DST)
	shift.Engine{}.ShiftBatch(records, effective, shift.ToLocal, domain.StageSetTime)

	if opts.DryRun {
		return nil
	}
	if o.Metadata == nil {
		return apperrors.New(apperrors.ToolFailure, "set-time", "", "no metadata tool configured")
	}
	return o.forEach(ctx, domain.StageSetTime, succeededOf(records, domain.StageSetTime), func(ctx context.Context, rec *domain.PhotoRecord) error {
		err := o.Metadata.WriteTimes(ctx, rec.SourcePath, TimeUpdate{
			AllDates: rec.CaptureLocal,
			Offset:   &base,
			DST:      opts.DST,
		})
		if err != nil {
			if apperrors.Is(err, apperrors.ToolFailure) {
				return err
			}
			rec.MarkFailed(domain.StageSetTime, apperrors.IOFailure, err.Error())
		}
		return nil
	})
}

func (o *Orchestrator) runRename(ctx context.Context, batch *domain.Batch, opts Options) error {
	records := eligible(batch, domain.StageRename)
	if len(records) == 0 {
		return nil
	}

	o.fixExtensions(records, opts)

	// Re-filter: an extension fix failure drops the record here.
	var renameable []*domain.PhotoRecord
	for _, rec := range records {
		if rec.Healthy() {
			renameable = append(renameable, rec)
		}
	}

	planner := plan.Planner{FS: o.FS, Logger: o.Logger}
	renamePlan, err := planner.Rename(renameable)
	if err != nil {
		return err
	}
	if err := o.apply(ctx, domain.StageRename, renamePlan, opts); err != nil {
		return err
	}

	if !opts.DryRun {
		o.cleanBackups(batch.Records)
	}
	return nil
}

// fixExtensions lowercases file extensions in place before planning, so
// IMG_0001.JPG and the naming scheme agree on ".jpg".
func (o *Orchestrator) fixExtensions(records []*domain.PhotoRecord, opts Options) {
	for _, rec := range records {
		rawExt := filepath.Ext(rec.Name)
		lower := strings.ToLower(rawExt)
		if rawExt == lower {
			continue
		}
		target := strings.TrimSuffix(rec.SourcePath, rawExt) + lower
		if opts.DryRun {
			rec.Relocate(target)
			continue
		}
		if err := o.FS.Rename(rec.SourcePath, target); err != nil {
			rec.MarkFailed(domain.StageRename, apperrors.IOFailure, err.Error())
			continue
		}
		rec.Relocate(target)
	}
}

// cleanBackups removes the *_original files the metadata tool leaves
// behind. Best effort; a leftover backup is not a failure.
func (o *Orchestrator) cleanBackups(records []*domain.PhotoRecord) {
	for _, rec := range records {
		backup := rec.SourcePath + "_original"
		if exists, _ := o.FS.Exists(backup); exists {
			if err := o.FS.Remove(backup); err != nil {
				o.Logger.Verbosef("could not remove backup %s: %v", backup, err)
			}
		}
	}
}

// apply commits a rename plan sequentially. The plan was computed under
// read-only access; moves happen here and nowhere else, one at a time, so
// no two paths are ever raced.
func (o *Orchestrator) apply(ctx context.Context, stage domain.Stage, renamePlan domain.RenamePlan, opts Options) error {
	for _, item := range renamePlan.Items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if item.SourcePath == item.TargetPath {
			item.Record.MarkSuccess(stage, "already in place")
			continue
		}
		if opts.DryRun {
			item.Record.MarkSkipped(stage, "dry-run: would move to "+item.TargetPath)
			continue
		}
		if exists, err := o.FS.Exists(item.TargetPath); err != nil {
			item.Record.MarkFailed(stage, apperrors.IOFailure, err.Error())
			continue
		} else if exists {
			// A prior move in this plan should have freed the slot; if it
			// is still occupied something outside the plan raced us.
			item.Record.MarkFailed(stage, apperrors.IOFailure, "target occupied: "+item.TargetPath)
			continue
		}
		if err := o.FS.MkdirAll(filepath.Dir(item.TargetPath), 0o755); err != nil {
			item.Record.MarkFailed(stage, apperrors.IOFailure, err.Error())
			continue
		}
		if err := o.FS.Rename(item.SourcePath, item.TargetPath); err != nil {
			item.Record.MarkFailed(stage, apperrors.IOFailure, err.Error())
			continue
		}
		item.Record.Relocate(item.TargetPath)
		item.Record.MarkSuccess(stage, "moved to "+item.TargetPath)
	}
	return nil
}

func succeededOf(records []*domain.PhotoRecord, stage domain.Stage) []*domain.PhotoRecord {
	var out []*domain.PhotoRecord
	for _, rec := range records {
		if rec.Succeeded(stage) {
			out = append(out, rec)
		}
	}
	return out
}

func groupByDir(records []*domain.PhotoRecord) map[string][]*domain.PhotoRecord {
	byDir := map[string][]*domain.PhotoRecord{}
	for _, rec := range records {
		dir := filepath.Dir(rec.SourcePath)
		byDir[dir] = append(byDir[dir], rec)
	}
	return byDir
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
