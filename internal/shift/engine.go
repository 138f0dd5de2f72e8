package shift

import (
	"photoproc/internal/domain"
	apperrors "photoproc/internal/errors"
)

type Direction int

const (
	ToUTC Direction = iota
	ToLocal
)

// Engine applies a uniform offset across a batch. Each record carries a
// marker for whether the UTC shift has been applied, so re-running a shift
// never double-shifts; a record with an unusable timestamp fails alone
// without blocking the rest of the batch.
type Engine struct{}

type Outcome struct {
	Shifted int
	Skipped int
	Failed  int
}

func (e Engine) ShiftBatch(records []*domain.PhotoRecord, offset domain.TimezoneOffset, dir Direction, stage domain.Stage) Outcome {
	var out Outcome
	for _, rec := range records {
		switch e.shiftRecord(rec, offset, dir, stage) {
		case domain.StatusSuccess:
			out.Shifted++
		case domain.StatusSkipped:
			out.Skipped++
		case domain.StatusFailed:
			out.Failed++
		}
	}
	return out
}

func (e Engine) shiftRecord(rec *domain.PhotoRecord, offset domain.TimezoneOffset, dir Direction, stage domain.Stage) domain.StageStatus {
	switch dir {
	case ToUTC:
		if rec.UTCShifted {
			rec.MarkSkipped(stage, "already shifted to UTC")
			return domain.StatusSkipped
		}
		if rec.CaptureLocal.IsZero() {
			rec.MarkFailed(stage, apperrors.TimestampParse, "no usable capture timestamp")
			return domain.StatusFailed
		}
		rec.CaptureUTC = rec.CaptureLocal.Add(-offset.Duration())
		rec.UTCShifted = true
	case ToLocal:
		if !rec.UTCShifted {
			rec.MarkSkipped(stage, "not in UTC, nothing to convert")
			return domain.StatusSkipped
		}
		rec.CaptureLocal = rec.CaptureUTC.Add(offset.Duration())
		rec.UTCShifted = false
	}
	rec.MarkSuccess(stage, "shifted by "+offset.String())
	return domain.StatusSuccess
}
