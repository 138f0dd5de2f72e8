package pipeline

import (
	"context"
	"io/fs"
	"time"

	"photoproc/internal/domain"
)

type FileSystem interface {
	WalkDir(root string, fn fs.WalkDirFunc) error
	Stat(path string) (fs.FileInfo, error)
	Exists(path string) (bool, error)
	MkdirAll(path string, perm fs.FileMode) error
	Rename(oldpath, newpath string) error
	Remove(path string) error
	// RemoveEmptyDirs prunes directories left empty under root after
	// organize moves files out of them.
	RemoveEmptyDirs(root string) error
}

// Tags is the subset of metadata the pipeline cares about, as read by the
// external metadata tool.
type Tags struct {
	DateTimeOriginal   time.Time
	OffsetTimeOriginal string
	TimeZone           string
	DaylightSavings    bool
	Latitude           *float64
	Longitude          *float64
}

// TimeUpdate describes a metadata write: the absolute capture timestamp
// plus either new timezone tags or an instruction to clear them.
type TimeUpdate struct {
	AllDates      time.Time
	Offset        *domain.TimezoneOffset
	DST           bool
	ClearTimezone bool
}

// MetadataTool is the external metadata tool boundary. Implementations
// report systemic unavailability (the tool cannot run at all) with a
// ToolFailure error kind; anything else is a per-file error.
type MetadataTool interface {
	ReadTags(ctx context.Context, path string) (Tags, error)
	WriteTimes(ctx context.Context, path string, update TimeUpdate) error
}

// GeotagTool matches photo timestamps against track logs and writes
// coordinates, one directory at a time. Track normalization and merging is
// the implementation's concern.
type GeotagTool interface {
	Geotag(ctx context.Context, dir string, trackFiles []string, timerangeSec int) error
}

// Store persists per-record stage markers between runs so a re-run can
// skip already-applied work. Markers are keyed by source path; Forget
// drops the markers of paths a stage moved away from. A nil Store keeps
// markers in memory only.
type Store interface {
	Load(records []*domain.PhotoRecord) error
	Save(records []*domain.PhotoRecord) error
	Forget(paths []string) error
}
