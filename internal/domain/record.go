package domain

import (
	"path/filepath"
	"strings"
	"time"

	apperrors "photoproc/internal/errors"
)

type Stage string

const (
	StageShiftToUTC Stage = "shift-to-utc"
	StageOrganize   Stage = "organize"
	StageGeotag     Stage = "geotag"
	StageSetTime    Stage = "set-time"
	StageRename     Stage = "rename"
)

// ProcessStages is the fixed order of the composite pipeline.
var ProcessStages = []Stage{StageShiftToUTC, StageOrganize, StageGeotag, StageSetTime, StageRename}

type StageStatus string

const (
	StatusPending StageStatus = "pending"
	StatusSuccess StageStatus = "success"
	StatusFailed  StageStatus = "failed"
	StatusSkipped StageStatus = "skipped"
)

type StageResult struct {
	Status    StageStatus
	Note      string
	ErrorKind apperrors.Kind
	ErrorMsg  string
}

type Coordinate struct {
	Lat float64
	Lon float64
}

// PhotoRecord tracks one source file through a pipeline run. It is created
// at scan time and mutated in place by each stage; SourcePath follows the
// file when a stage moves it.
type PhotoRecord struct {
	SourcePath   string
	Name         string
	Ext          string
	CaptureLocal time.Time
	CaptureUTC   time.Time
	UTCShifted   bool
	Coordinate   *Coordinate
	Stages       map[Stage]StageResult
}

func NewPhotoRecord(sourcePath string, captureLocal time.Time) *PhotoRecord {
	name := filepath.Base(sourcePath)
	return &PhotoRecord{
		SourcePath:   sourcePath,
		Name:         name,
		Ext:          strings.ToLower(filepath.Ext(name)),
		CaptureLocal: captureLocal,
		Stages:       map[Stage]StageResult{},
	}
}

// Relocate points the record at its new path after a move.
func (r *PhotoRecord) Relocate(path string) {
	r.SourcePath = path
	r.Name = filepath.Base(path)
	r.Ext = strings.ToLower(filepath.Ext(r.Name))
}

// Timestamp is the most authoritative capture time known so far.
func (r *PhotoRecord) Timestamp() time.Time {
	if r.UTCShifted {
		return r.CaptureUTC
	}
	return r.CaptureLocal
}

func (r *PhotoRecord) Result(stage Stage) StageResult {
	if res, ok := r.Stages[stage]; ok {
		return res
	}
	return StageResult{Status: StatusPending}
}

func (r *PhotoRecord) MarkSuccess(stage Stage, note string) {
	r.Stages[stage] = StageResult{Status: StatusSuccess, Note: note}
}

func (r *PhotoRecord) MarkSkipped(stage Stage, note string) {
	r.Stages[stage] = StageResult{Status: StatusSkipped, Note: note}
}

func (r *PhotoRecord) MarkFailed(stage Stage, kind apperrors.Kind, msg string) {
	r.Stages[stage] = StageResult{Status: StatusFailed, ErrorKind: kind, ErrorMsg: msg}
}

func (r *PhotoRecord) Failed(stage Stage) bool {
	return r.Result(stage).Status == StatusFailed
}

func (r *PhotoRecord) Succeeded(stage Stage) bool {
	return r.Result(stage).Status == StatusSuccess
}

// Healthy reports whether the record is still eligible for the given
// stage: no earlier failure has dropped it out of the batch.
func (r *PhotoRecord) Healthy() bool {
	for _, res := range r.Stages {
		if res.Status == StatusFailed {
			return false
		}
	}
	return true
}
