package scan

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"photoproc/internal/domain"
)

type mockFS struct {
	entries []mockEntry
}

type mockEntry struct {
	path    string
	isDir   bool
	modTime time.Time
}

func (m mockFS) WalkDir(root string, fn fs.WalkDirFunc) error {
	for _, entry := range m.entries {
		if entry.path != root && !strings.HasPrefix(entry.path, root+"/") {
			continue
		}
		dirEntry := mockDirEntry{name: filepath.Base(entry.path), isDir: entry.isDir}
		if err := fn(entry.path, dirEntry, nil); err != nil {
			return err
		}
	}
	return nil
}

func (m mockFS) Stat(path string) (fs.FileInfo, error) {
	for _, entry := range m.entries {
		if entry.path == path {
			return mockFileInfo{name: filepath.Base(path), modTime: entry.modTime}, nil
		}
	}
	return nil, fs.ErrNotExist
}

type mockExif struct {
	timestamps map[string]time.Time
	err        error
}

func (m mockExif) DateTimeOriginal(ctx context.Context, path string) (time.Time, error) {
	if m.err != nil {
		return time.Time{}, m.err
	}
	if ts, ok := m.timestamps[path]; ok {
		return ts, nil
	}
	return time.Time{}, errors.New("missing exif")
}

type mockDirEntry struct {
	name  string
	isDir bool
}

func (m mockDirEntry) Name() string               { return m.name }
func (m mockDirEntry) IsDir() bool                { return m.isDir }
func (m mockDirEntry) Type() fs.FileMode          { return 0 }
func (m mockDirEntry) Info() (fs.FileInfo, error) { return nil, nil }

type mockFileInfo struct {
	name    string
	modTime time.Time
}

func (m mockFileInfo) Name() string       { return m.name }
func (m mockFileInfo) Size() int64        { return 0 }
func (m mockFileInfo) Mode() fs.FileMode  { return 0 }
func (m mockFileInfo) ModTime() time.Time { return m.modTime }
func (m mockFileInfo) IsDir() bool        { return false }
func (m mockFileInfo) Sys() interface{}   { return nil }

func TestScanSeparatesImagesAndTracks(t *testing.T) {
	taken := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	mock := mockFS{entries: []mockEntry{
		{path: "/photos", isDir: true},
		{path: "/photos/IMG_0001.JPG", modTime: taken},
		{path: "/photos/IMG_0002.jpg", modTime: taken},
		{path: "/photos/walk.gpx"},
		{path: "/photos/notes.txt"},
	}}
	exif := mockExif{timestamps: map[string]time.Time{
		"/photos/IMG_0001.JPG": taken,
		"/photos/IMG_0002.jpg": taken.Add(time.Minute),
	}}

	scanner := Scanner{FS: mock, Exif: exif, ExifWorkers: 2}
	batch, warnings, err := scanner.Scan(context.Background(), []string{"/photos"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if len(batch.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(batch.Records))
	}
	if len(batch.TrackFiles) != 1 || batch.TrackFiles[0] != "/photos/walk.gpx" {
		t.Fatalf("unexpected track files: %v", batch.TrackFiles)
	}
	if batch.Records[0].SourcePath != "/photos/IMG_0001.JPG" {
		t.Fatalf("expected sorted records, got %s first", batch.Records[0].SourcePath)
	}
	if !batch.Records[1].CaptureLocal.Equal(taken.Add(time.Minute)) {
		t.Fatalf("unexpected capture time: %v", batch.Records[1].CaptureLocal)
	}
}

func TestScanHonorsSuffixSet(t *testing.T) {
	taken := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	mock := mockFS{entries: []mockEntry{
		{path: "/photos/clip.MP4", modTime: taken},
		{path: "/photos/img.jpg", modTime: taken},
		{path: "/photos/raw.arw", modTime: taken},
	}}
	exif := mockExif{timestamps: map[string]time.Time{
		"/photos/img.jpg": taken,
	}}

	// Default suffix set covers jpg and mp4, with case-insensitive matching.
	scanner := Scanner{FS: mock, Exif: exif, ExifWorkers: 1}
	batch, _, err := scanner.Scan(context.Background(), []string{"/photos"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(batch.Records) != 2 {
		t.Fatalf("expected 2 records with default suffixes, got %d", len(batch.Records))
	}
	if batch.Records[0].SourcePath != "/photos/clip.MP4" {
		t.Fatalf("expected video record first, got %s", batch.Records[0].SourcePath)
	}

	scanner.Suffixes = domain.NewSuffixSet([]string{"arw"})
	batch, _, err = scanner.Scan(context.Background(), []string{"/photos"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(batch.Records) != 1 || batch.Records[0].SourcePath != "/photos/raw.arw" {
		t.Fatalf("expected only the raw file, got %v", batch.Records)
	}
}

func TestScanFallsBackToModTime(t *testing.T) {
	modTime := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)
	mock := mockFS{entries: []mockEntry{
		{path: "/photos/IMG_0001.jpg", modTime: modTime},
	}}

	scanner := Scanner{FS: mock, Exif: mockExif{timestamps: map[string]time.Time{}}, ExifWorkers: 1}
	batch, warnings, err := scanner.Scan(context.Background(), []string{"/photos"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", warnings)
	}
	if !batch.Records[0].CaptureLocal.Equal(modTime) {
		t.Fatalf("expected mod time fallback, got %v", batch.Records[0].CaptureLocal)
	}
}

func TestScanPropagatesCancellation(t *testing.T) {
	mock := mockFS{entries: []mockEntry{
		{path: "/photos/IMG_0001.jpg"},
	}}
	exif := mockExif{err: context.Canceled}

	scanner := Scanner{FS: mock, Exif: exif, ExifWorkers: 1}
	_, _, err := scanner.Scan(context.Background(), []string{"/photos"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestScanReportsProgress(t *testing.T) {
	taken := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	mock := mockFS{entries: []mockEntry{
		{path: "/photos/a.jpg", modTime: taken},
		{path: "/photos/b.jpg", modTime: taken},
		{path: "/photos/c.jpg", modTime: taken},
	}}
	exif := mockExif{timestamps: map[string]time.Time{
		"/photos/a.jpg": taken, "/photos/b.jpg": taken, "/photos/c.jpg": taken,
	}}

	var calls []int
	scanner := Scanner{FS: mock, Exif: exif, ExifWorkers: 1, OnProgress: func(current, total int) {
		if total != 3 {
			t.Fatalf("expected total 3, got %d", total)
		}
		calls = append(calls, current)
	}}
	if _, _, err := scanner.Scan(context.Background(), []string{"/photos"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 3 || calls[2] != 3 {
		t.Fatalf("unexpected progress calls: %v", calls)
	}
}
