package pipeline

import (
	"context"
	"runtime"

	"photoproc/internal/domain"
	apperrors "photoproc/internal/errors"
	"photoproc/internal/logging"
	"photoproc/internal/timezone"
)

// Spec is the ordered sequence of stages for one run.
type Spec []domain.Stage

func ProcessSpec(organize bool) Spec {
	if organize {
		return Spec(domain.ProcessStages)
	}
	return Spec{domain.StageShiftToUTC, domain.StageGeotag, domain.StageSetTime, domain.StageRename}
}

func Single(stage domain.Stage) Spec {
	return Spec{stage}
}

func (s Spec) Contains(stage domain.Stage) bool {
	for _, candidate := range s {
		if candidate == stage {
			return true
		}
	}
	return false
}

// Options are the per-run knobs.
type Options struct {
	// Timezone is the photographer-supplied identifier. When set it is
	// authoritative; shift-to-utc only falls back to camera metadata
	// detection when it is empty.
	Timezone     string
	DST          bool
	TimerangeSec int
	DryRun       bool
}

type ProgressFunc func(stage domain.Stage, current, total int)
type StageFunc func(stage domain.Stage)

// Orchestrator sequences stages over a batch. Stages run strictly in
// order; records within a stage may be processed by a bounded worker pool.
// A systemic stage error aborts the run at that stage boundary, while
// record-level failures accumulate into the report and the run continues.
type Orchestrator struct {
	FS        FileSystem
	Metadata  MetadataTool
	Geotagger GeotagTool
	Resolver  *timezone.Resolver
	Store     Store
	Logger    logging.Logger
	Workers   int

	OnStage    StageFunc
	OnProgress ProgressFunc
}

func (o *Orchestrator) Run(ctx context.Context, batch *domain.Batch, spec Spec, opts Options) domain.BatchReport {
	report := domain.BatchReport{
		State:      domain.RunRunning,
		StageOrder: []domain.Stage(spec),
		Records:    batch.Records,
	}

	if o.FS == nil || o.Resolver == nil {
		return aborted(report, "", "orchestrator requires FS and Resolver")
	}
	if len(spec) == 0 {
		return aborted(report, "", "empty pipeline spec")
	}
	// Set-time cannot detect a timezone from metadata, so a run that will
	// reach it must carry one before any earlier stage mutates files.
	if opts.Timezone == "" && spec.Contains(domain.StageSetTime) {
		return aborted(report, domain.StageSetTime, "no timezone supplied for set-time")
	}

	if o.Store != nil {
		if err := o.Store.Load(batch.Records); err != nil {
			o.Logger.Warnf("could not load stage markers: %v", err)
		}
	}

	for _, stage := range spec {
		if err := ctx.Err(); err != nil {
			return aborted(report, stage, "run canceled")
		}
		if o.OnStage != nil {
			o.OnStage(stage)
		}

		priorPaths := currentPaths(batch)

		stop := o.Logger.Measure("Stage " + string(stage))
		err := o.runStage(ctx, stage, batch, opts)
		stop()

		o.forgetMoved(batch, priorPaths, opts)
		o.persist(batch, opts)

		if err != nil {
			o.Logger.Infof("Stage %s aborted: %s", stage, apperrors.UserMessage(err))
			return aborted(report, stage, apperrors.UserMessage(err))
		}
		counts := report.Counts(stage)
		o.Logger.Verbosef("Stage %s: %d success, %d failed, %d skipped", stage, counts.Success, counts.Failed, counts.Skipped)
	}

	report.State = domain.RunCompleted
	return report
}

func (o *Orchestrator) runStage(ctx context.Context, stage domain.Stage, batch *domain.Batch, opts Options) error {
	switch stage {
	case domain.StageShiftToUTC:
		return o.runShiftToUTC(ctx, batch, opts)
	case domain.StageOrganize:
		return o.runOrganize(ctx, batch, opts)
	case domain.StageGeotag:
		return o.runGeotag(ctx, batch, opts)
	case domain.StageSetTime:
		return o.runSetTime(ctx, batch, opts)
	case domain.StageRename:
		return o.runRename(ctx, batch, opts)
	default:
		return apperrors.New(apperrors.Internal, "run", "", "unknown stage "+string(stage))
	}
}

func aborted(report domain.BatchReport, stage domain.Stage, reason string) domain.BatchReport {
	report.State = domain.RunAborted
	report.AbortedStage = stage
	report.AbortReason = reason
	return report
}

func currentPaths(batch *domain.Batch) []string {
	paths := make([]string, len(batch.Records))
	for i, rec := range batch.Records {
		paths[i] = rec.SourcePath
	}
	return paths
}

// forgetMoved drops the stage markers of paths a stage renamed away from,
// so the store never accumulates markers for files that no longer exist.
func (o *Orchestrator) forgetMoved(batch *domain.Batch, prior []string, opts Options) {
	if o.Store == nil || opts.DryRun {
		return
	}
	var stale []string
	for i, rec := range batch.Records {
		if rec.SourcePath != prior[i] {
			stale = append(stale, prior[i])
		}
	}
	if len(stale) == 0 {
		return
	}
	if err := o.Store.Forget(stale); err != nil {
		o.Logger.Warnf("could not drop stale stage markers: %v", err)
	}
}

func (o *Orchestrator) persist(batch *domain.Batch, opts Options) {
	if o.Store == nil || opts.DryRun {
		return
	}
	if err := o.Store.Save(batch.Records); err != nil {
		o.Logger.Warnf("could not save stage markers: %v", err)
	}
}

// eligible filters the records a stage should touch: records that failed
// an earlier stage are out of the batch, and records already done for this
// stage are skipped rather than reapplied.
func eligible(batch *domain.Batch, stage domain.Stage) []*domain.PhotoRecord {
	var out []*domain.PhotoRecord
	for _, rec := range batch.Records {
		if rec.Healthy() && !rec.Succeeded(stage) {
			out = append(out, rec)
		}
	}
	return out
}

// forEach runs fn over records with bounded concurrency. fn reports
// record-level outcomes on the record itself and returns an error only for
// systemic failures, which win over completing the batch.
func (o *Orchestrator) forEach(ctx context.Context, stage domain.Stage, records []*domain.PhotoRecord, fn func(context.Context, *domain.PhotoRecord) error) error {
	if len(records) == 0 {
		return nil
	}

	workerCount := o.Workers
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if workerCount > len(records) {
		workerCount = len(records)
	}

	jobs := make(chan *domain.PhotoRecord)
	results := make(chan error, len(records))

	for i := 0; i < workerCount; i++ {
		go func() {
			for rec := range jobs {
				results <- fn(ctx, rec)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, rec := range records {
			select {
			case <-ctx.Done():
				return
			case jobs <- rec:
			}
		}
	}()

	var systemic error
	for i := 0; i < len(records); i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-results:
			if err != nil && systemic == nil {
				systemic = err
			}
			if o.OnProgress != nil {
				o.OnProgress(stage, i+1, len(records))
			}
		}
	}
	return systemic
}
