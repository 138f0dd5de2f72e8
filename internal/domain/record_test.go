package domain

import (
	"testing"
	"time"

	apperrors "photoproc/internal/errors"
)

func TestRelocateUpdatesNameAndExt(t *testing.T) {
	rec := NewPhotoRecord("/photos/IMG_0001.JPG", time.Now())
	if rec.Ext != ".jpg" {
		t.Fatalf("expected lowercase ext, got %s", rec.Ext)
	}

	rec.Relocate("/photos/2024-06-01/2024-06-01 08.00.01.jpg")
	if rec.Name != "2024-06-01 08.00.01.jpg" {
		t.Fatalf("unexpected name: %s", rec.Name)
	}
	if rec.SourcePath != "/photos/2024-06-01/2024-06-01 08.00.01.jpg" {
		t.Fatalf("unexpected path: %s", rec.SourcePath)
	}
}

func TestTimestampPrefersUTCAfterShift(t *testing.T) {
	local := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	rec := NewPhotoRecord("/photos/a.jpg", local)
	if !rec.Timestamp().Equal(local) {
		t.Fatalf("expected local time before shift, got %v", rec.Timestamp())
	}

	rec.CaptureUTC = local.Add(-2 * time.Hour)
	rec.UTCShifted = true
	if !rec.Timestamp().Equal(rec.CaptureUTC) {
		t.Fatalf("expected UTC time after shift, got %v", rec.Timestamp())
	}
}

func TestHealthyClearsOnAnyFailure(t *testing.T) {
	rec := NewPhotoRecord("/photos/a.jpg", time.Now())
	rec.MarkSuccess(StageShiftToUTC, "")
	rec.MarkSkipped(StageGeotag, "no track files")
	if !rec.Healthy() {
		t.Fatal("expected healthy record")
	}

	rec.MarkFailed(StageOrganize, apperrors.IOFailure, "disk full")
	if rec.Healthy() {
		t.Fatal("expected unhealthy record after failure")
	}
}

func TestBatchRootForLongestPrefix(t *testing.T) {
	batch := Batch{Roots: []string{"/photos", "/photos/trip"}}
	if root := batch.RootFor("/photos/trip/a.jpg"); root != "/photos/trip" {
		t.Fatalf("expected longest prefix, got %s", root)
	}
	if root := batch.RootFor("/photos/b.jpg"); root != "/photos" {
		t.Fatalf("expected /photos, got %s", root)
	}
	if root := batch.RootFor("/elsewhere/c.jpg"); root != "/photos" {
		t.Fatalf("expected fallback to first root, got %s", root)
	}
}

func TestBatchRootForRequiresSeparatorBoundary(t *testing.T) {
	batch := Batch{Roots: []string{"/backup", "/photos"}}
	if root := batch.RootFor("/photos2/a.jpg"); root != "/backup" {
		t.Fatalf("sibling directory claimed by /photos, got %s", root)
	}
	if root := batch.RootFor("/photos"); root != "/photos" {
		t.Fatalf("expected root to match itself, got %s", root)
	}
	trailing := Batch{Roots: []string{"/photos/"}}
	if root := trailing.RootFor("/photos/a.jpg"); root != "/photos" {
		t.Fatalf("expected trailing separator trimmed, got %s", root)
	}
}

func TestBatchDirsSkipsFailedRecords(t *testing.T) {
	good := NewPhotoRecord("/photos/a/1.jpg", time.Now())
	bad := NewPhotoRecord("/photos/b/2.jpg", time.Now())
	bad.MarkFailed(StageShiftToUTC, apperrors.TimestampParse, "")

	batch := Batch{Records: []*PhotoRecord{good, bad}}
	dirs := batch.Dirs()
	if len(dirs) != 1 || dirs[0] != "/photos/a" {
		t.Fatalf("unexpected dirs: %v", dirs)
	}
}
