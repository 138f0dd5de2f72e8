package state

import (
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"photoproc/internal/domain"
	apperrors "photoproc/internal/errors"
)

// stageMarker is one persisted stage outcome for one file. Markers let an
// interrupted run resume without reapplying shifts or renames.
type stageMarker struct {
	Path      string `gorm:"primaryKey;not null"`
	Stage     string `gorm:"primaryKey;not null"`
	Status    string `gorm:"not null"`
	Note      string
	ErrorKind string
	ErrorMsg  string
	UpdatedAt time.Time
}

// Store persists stage markers in a sqlite database next to the photos.
type Store struct {
	db *gorm.DB
}

func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open("file:"+path+"?_journal_mode=WAL"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.IOFailure, "state open", path, err)
	}
	if err := db.AutoMigrate(&stageMarker{}); err != nil {
		return nil, apperrors.Wrap(apperrors.IOFailure, "state migrate", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Load restores prior successes onto the records. Only success markers are
// restored: failed and skipped stages are retried on the next run.
func (s *Store) Load(records []*domain.PhotoRecord) error {
	paths := make([]string, 0, len(records))
	byPath := make(map[string]*domain.PhotoRecord, len(records))
	for _, rec := range records {
		paths = append(paths, rec.SourcePath)
		byPath[rec.SourcePath] = rec
	}

	var markers []stageMarker
	if result := s.db.Where("path IN ?", paths).Find(&markers); result.Error != nil {
		return apperrors.Wrap(apperrors.IOFailure, "state load", "", result.Error)
	}

	for _, marker := range markers {
		rec := byPath[marker.Path]
		if rec == nil || marker.Status != string(domain.StatusSuccess) {
			continue
		}
		stage := domain.Stage(marker.Stage)
		if rec.Result(stage).Status == domain.StatusPending {
			rec.MarkSuccess(stage, marker.Note)
			if stage == domain.StageShiftToUTC {
				rec.UTCShifted = true
				rec.CaptureUTC = rec.CaptureLocal
			}
		}
	}
	return nil
}

// Save upserts the current stage results of every record.
func (s *Store) Save(records []*domain.PhotoRecord) error {
	var markers []stageMarker
	now := time.Now()
	for _, rec := range records {
		for stage, res := range rec.Stages {
			markers = append(markers, stageMarker{
				Path:      rec.SourcePath,
				Stage:     string(stage),
				Status:    string(res.Status),
				Note:      res.Note,
				ErrorKind: string(res.ErrorKind),
				ErrorMsg:  res.ErrorMsg,
				UpdatedAt: now,
			})
		}
	}
	if len(markers) == 0 {
		return nil
	}
	result := s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&markers)
	if result.Error != nil {
		return apperrors.Wrap(apperrors.IOFailure, "state save", "", result.Error)
	}
	return nil
}

// Forget drops the markers for the given paths, typically after a record
// has moved to its final name.
func (s *Store) Forget(paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	result := s.db.Where("path IN ?", paths).Delete(&stageMarker{})
	if result.Error != nil {
		return apperrors.Wrap(apperrors.IOFailure, "state forget", "", result.Error)
	}
	return nil
}
