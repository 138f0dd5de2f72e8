package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"photoproc/internal/domain"
	apperrors "photoproc/internal/errors"
	"photoproc/internal/logging"
)

type FileSystem interface {
	WalkDir(root string, fn fs.WalkDirFunc) error
	Stat(path string) (fs.FileInfo, error)
}

type ExifReader interface {
	DateTimeOriginal(ctx context.Context, path string) (time.Time, error)
}

// ProgressFunc is called during scanning to report progress
type ProgressFunc func(current, total int)

// Scanner walks the input roots and builds the batch: one record per image
// file, capture time from EXIF, plus the GPX track logs found along the way.
type Scanner struct {
	FS          FileSystem
	Exif        ExifReader
	ExifWorkers int
	Suffixes    domain.SuffixSet
	Logger      logging.Logger
	OnProgress  ProgressFunc
}

func (s *Scanner) suffixes() domain.SuffixSet {
	if len(s.Suffixes) > 0 {
		return s.Suffixes
	}
	return domain.NewSuffixSet(domain.DefaultSuffixes)
}

func (s *Scanner) Scan(ctx context.Context, roots []string) (*domain.Batch, []string, error) {
	if s.FS == nil || s.Exif == nil {
		return nil, nil, errors.New("scanner requires FS and Exif")
	}

	stop := s.Logger.Measure("Scanning input roots")
	defer stop()

	// Phase 1: walk and separate media files from track logs.
	suffixes := s.suffixes()
	var imagePaths []string
	var trackFiles []string
	for _, root := range roots {
		err := s.FS.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				return nil
			}
			ext := filepath.Ext(d.Name())
			switch {
			case suffixes.Matches(ext):
				imagePaths = append(imagePaths, path)
			case domain.IsTrackExtension(ext):
				trackFiles = append(trackFiles, path)
			}
			return nil
		})
		if err != nil {
			return nil, nil, apperrors.Wrap(apperrors.IOFailure, "scan", root, err)
		}
	}
	sort.Strings(imagePaths)
	sort.Strings(trackFiles)
	s.Logger.Verbosef("Found %d image files and %d track files under %d roots", len(imagePaths), len(trackFiles), len(roots))

	// Phase 2: read capture times with EXIF workers.
	workerCount := s.ExifWorkers
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if workerCount < 1 {
		workerCount = 1
	}
	s.Logger.Verbosef("Using %d EXIF workers", workerCount)

	type result struct {
		record  *domain.PhotoRecord
		warning string
		err     error
	}

	jobs := make(chan string)
	results := make(chan result)

	for i := 0; i < workerCount; i++ {
		go func() {
			for path := range jobs {
				takenAt, exifErr := s.Exif.DateTimeOriginal(ctx, path)
				warning := ""
				if exifErr != nil {
					if errors.Is(exifErr, context.Canceled) || errors.Is(exifErr, context.DeadlineExceeded) {
						results <- result{err: exifErr}
						continue
					}
					info, statErr := s.FS.Stat(path)
					if statErr != nil {
						results <- result{err: statErr}
						continue
					}
					takenAt = info.ModTime()
					warning = fmt.Sprintf("EXIF not found for %s, using filesystem time", filepath.Base(path))
				}
				results <- result{
					record:  domain.NewPhotoRecord(path, takenAt),
					warning: warning,
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, path := range imagePaths {
			select {
			case <-ctx.Done():
				return
			case jobs <- path:
			}
		}
	}()

	var records []*domain.PhotoRecord
	var warnings []string
	total := len(imagePaths)
	for i := 0; i < total; i++ {
		res := <-results
		if res.err != nil {
			return nil, nil, res.err
		}
		if res.warning != "" {
			warnings = append(warnings, res.warning)
		}
		records = append(records, res.record)
		if s.OnProgress != nil {
			s.OnProgress(i+1, total)
		}
	}

	// Workers finish in arbitrary order; keep the batch deterministic.
	sort.Slice(records, func(i, j int) bool {
		return records[i].SourcePath < records[j].SourcePath
	})

	return &domain.Batch{Roots: roots, Records: records, TrackFiles: trackFiles}, warnings, nil
}
