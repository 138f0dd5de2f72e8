package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"testing"
	"time"

	"photoproc/internal/domain"
	apperrors "photoproc/internal/errors"
	"photoproc/internal/timezone"
)

type fakeFS struct {
	mu    sync.Mutex
	files map[string]bool
}

func newFakeFS(paths ...string) *fakeFS {
	files := map[string]bool{}
	for _, path := range paths {
		files[path] = true
	}
	return &fakeFS{files: files}
}

func (f *fakeFS) WalkDir(root string, fn fs.WalkDirFunc) error { return nil }

func (f *fakeFS) Stat(path string) (fs.FileInfo, error) { return nil, fs.ErrNotExist }

func (f *fakeFS) Exists(path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.files[path], nil
}

func (f *fakeFS) MkdirAll(path string, perm fs.FileMode) error { return nil }

func (f *fakeFS) Rename(oldpath, newpath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.files[oldpath] {
		return fs.ErrNotExist
	}
	delete(f.files, oldpath)
	f.files[newpath] = true
	return nil
}

func (f *fakeFS) Remove(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, path)
	return nil
}

func (f *fakeFS) RemoveEmptyDirs(root string) error { return nil }

type fakeMetadata struct {
	mu     sync.Mutex
	tags   map[string]Tags
	writes map[string][]TimeUpdate
	err    error
}

func newFakeMetadata() *fakeMetadata {
	return &fakeMetadata{tags: map[string]Tags{}, writes: map[string][]TimeUpdate{}}
}

func (m *fakeMetadata) ReadTags(ctx context.Context, path string) (Tags, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return Tags{}, m.err
	}
	return m.tags[path], nil
}

func (m *fakeMetadata) WriteTimes(ctx context.Context, path string, update TimeUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.writes[path] = append(m.writes[path], update)
	return nil
}

type fakeGeotagger struct {
	mu   sync.Mutex
	dirs []string
	err  error
}

func (g *fakeGeotagger) Geotag(ctx context.Context, dir string, trackFiles []string, timerangeSec int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.dirs = append(g.dirs, dir)
	return nil
}

func newOrchestrator(filesystem *fakeFS, metadata *fakeMetadata, geotagger *fakeGeotagger) *Orchestrator {
	return &Orchestrator{
		FS:        filesystem,
		Metadata:  metadata,
		Geotagger: geotagger,
		Resolver:  timezone.NewDefaultResolver(),
		Workers:   2,
	}
}

func batchOf(records ...*domain.PhotoRecord) *domain.Batch {
	return &domain.Batch{Roots: []string{"/photos"}, Records: records}
}

func localRecord(path string, local time.Time) *domain.PhotoRecord {
	return domain.NewPhotoRecord(path, local)
}

func TestProcessEndToEnd(t *testing.T) {
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	recA := localRecord("/photos/IMG_0001.jpg", day.Add(10*time.Hour+1*time.Second))
	recB := localRecord("/photos/IMG_0002.jpg", day.Add(10*time.Hour+1*time.Second))
	recC := localRecord("/photos/IMG_0003.jpg", day.Add(10*time.Hour+5*time.Minute))

	filesystem := newFakeFS(recA.SourcePath, recB.SourcePath, recC.SourcePath)
	orch := newOrchestrator(filesystem, newFakeMetadata(), &fakeGeotagger{})
	batch := batchOf(recA, recB, recC)

	spec := Spec{domain.StageShiftToUTC, domain.StageOrganize, domain.StageRename}
	report := orch.Run(context.Background(), batch, spec, Options{Timezone: "+02:00"})

	if report.State != domain.RunCompleted {
		t.Fatalf("expected completed run, got %s (%s)", report.State, report.AbortReason)
	}

	wantUTC := []time.Time{
		day.Add(8*time.Hour + 1*time.Second),
		day.Add(8*time.Hour + 1*time.Second),
		day.Add(8*time.Hour + 5*time.Minute),
	}
	for i, rec := range []*domain.PhotoRecord{recA, recB, recC} {
		if !rec.CaptureUTC.Equal(wantUTC[i]) {
			t.Fatalf("record %d: expected UTC %v, got %v", i, wantUTC[i], rec.CaptureUTC)
		}
	}

	wantPaths := map[string]string{
		"IMG_0001.jpg": "/photos/2024-06-01/2024-06-01 08.00.01.jpg",
		"IMG_0002.jpg": "/photos/2024-06-01/2024-06-01 08.00.01_2.jpg",
		"IMG_0003.jpg": "/photos/2024-06-01/2024-06-01 08.05.00.jpg",
	}
	for original, want := range map[string]*domain.PhotoRecord{
		"IMG_0001.jpg": recA, "IMG_0002.jpg": recB, "IMG_0003.jpg": recC,
	} {
		if want.SourcePath != wantPaths[original] {
			t.Fatalf("%s: expected %s, got %s", original, wantPaths[original], want.SourcePath)
		}
		if exists, _ := filesystem.Exists(want.SourcePath); !exists {
			t.Fatalf("%s: file missing at %s", original, want.SourcePath)
		}
	}
}

func TestRunAbortsOnUnknownTimezone(t *testing.T) {
	rec := localRecord("/photos/a.jpg", time.Now())
	orch := newOrchestrator(newFakeFS(rec.SourcePath), newFakeMetadata(), &fakeGeotagger{})

	report := orch.Run(context.Background(), batchOf(rec), Single(domain.StageShiftToUTC), Options{Timezone: "Nowhere"})
	if report.State != domain.RunAborted {
		t.Fatalf("expected aborted run, got %s", report.State)
	}
	if report.AbortedStage != domain.StageShiftToUTC {
		t.Fatalf("expected abort at shift-to-utc, got %s", report.AbortedStage)
	}
}

func TestGeotagToolFailureAbortsBeforeLaterStages(t *testing.T) {
	local := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	rec := localRecord("/photos/a.jpg", local)
	filesystem := newFakeFS(rec.SourcePath)
	geotagger := &fakeGeotagger{err: apperrors.New(apperrors.ToolFailure, "geotag", "", "gpicsync not found")}
	orch := newOrchestrator(filesystem, newFakeMetadata(), geotagger)

	batch := batchOf(rec)
	batch.TrackFiles = []string{"/photos/track.gpx"}
	report := orch.Run(context.Background(), batch, ProcessSpec(true), Options{Timezone: "+02:00"})

	if report.State != domain.RunAborted || report.AbortedStage != domain.StageGeotag {
		t.Fatalf("expected abort at geotag, got %s at %s", report.State, report.AbortedStage)
	}
	if rec.Result(domain.StageSetTime).Status != domain.StatusPending {
		t.Fatalf("set-time ran after abort: %+v", rec.Result(domain.StageSetTime))
	}
	if rec.Result(domain.StageRename).Status != domain.StatusPending {
		t.Fatalf("rename ran after abort: %+v", rec.Result(domain.StageRename))
	}
}

func TestGeotagSkippedWithoutTrackFiles(t *testing.T) {
	rec := localRecord("/photos/a.jpg", time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	orch := newOrchestrator(newFakeFS(rec.SourcePath), newFakeMetadata(), &fakeGeotagger{})

	report := orch.Run(context.Background(), batchOf(rec), Single(domain.StageGeotag), Options{})
	if report.State != domain.RunCompleted {
		t.Fatalf("expected completed run, got %s", report.State)
	}
	if rec.Result(domain.StageGeotag).Status != domain.StatusSkipped {
		t.Fatalf("expected skipped, got %+v", rec.Result(domain.StageGeotag))
	}
}

func TestShiftReRunSkipsAppliedRecords(t *testing.T) {
	local := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	rec := localRecord("/photos/a.jpg", local)
	metadata := newFakeMetadata()
	orch := newOrchestrator(newFakeFS(rec.SourcePath), metadata, &fakeGeotagger{})

	opts := Options{Timezone: "+02:00"}
	first := orch.Run(context.Background(), batchOf(rec), Single(domain.StageShiftToUTC), opts)
	if first.State != domain.RunCompleted {
		t.Fatalf("first run failed: %s", first.AbortReason)
	}
	shifted := rec.CaptureUTC

	second := orch.Run(context.Background(), batchOf(rec), Single(domain.StageShiftToUTC), opts)
	if second.State != domain.RunCompleted {
		t.Fatalf("second run failed: %s", second.AbortReason)
	}
	if !rec.CaptureUTC.Equal(shifted) {
		t.Fatalf("re-run double-shifted: %v vs %v", rec.CaptureUTC, shifted)
	}
	if len(metadata.writes[rec.SourcePath]) != 1 {
		t.Fatalf("expected exactly 1 metadata write, got %d", len(metadata.writes[rec.SourcePath]))
	}
}

func TestShiftIsolatesCorruptRecord(t *testing.T) {
	records := make([]*domain.PhotoRecord, 0, 100)
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 99; i++ {
		records = append(records, localRecord(fmt.Sprintf("/photos/img%03d.jpg", i), base.Add(time.Duration(i)*time.Second)))
	}
	corrupt := localRecord("/photos/corrupt.jpg", time.Time{})
	records = append(records, corrupt)

	var paths []string
	for _, rec := range records {
		paths = append(paths, rec.SourcePath)
	}
	orch := newOrchestrator(newFakeFS(paths...), newFakeMetadata(), &fakeGeotagger{})

	report := orch.Run(context.Background(), batchOf(records...), Single(domain.StageShiftToUTC), Options{Timezone: "+02:00"})
	if report.State != domain.RunCompleted {
		t.Fatalf("expected completed run, got %s (%s)", report.State, report.AbortReason)
	}
	counts := report.Counts(domain.StageShiftToUTC)
	if counts.Success != 99 || counts.Failed != 1 {
		t.Fatalf("expected 99 success / 1 failed, got %+v", counts)
	}
}

func TestShiftDetectsOffsetFromMetadata(t *testing.T) {
	local := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	rec := localRecord("/photos/a.jpg", local)
	metadata := newFakeMetadata()
	metadata.tags[rec.SourcePath] = Tags{OffsetTimeOriginal: "+02:00"}
	orch := newOrchestrator(newFakeFS(rec.SourcePath), metadata, &fakeGeotagger{})

	report := orch.Run(context.Background(), batchOf(rec), Single(domain.StageShiftToUTC), Options{})
	if report.State != domain.RunCompleted {
		t.Fatalf("expected completed run, got %s (%s)", report.State, report.AbortReason)
	}
	want := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	if !rec.CaptureUTC.Equal(want) {
		t.Fatalf("expected %v, got %v", want, rec.CaptureUTC)
	}
}

func TestShiftDetectsOffsetFromTimeZoneWithDST(t *testing.T) {
	local := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	rec := localRecord("/photos/a.jpg", local)
	metadata := newFakeMetadata()
	metadata.tags[rec.SourcePath] = Tags{TimeZone: "+01:00", DaylightSavings: true}
	orch := newOrchestrator(newFakeFS(rec.SourcePath), metadata, &fakeGeotagger{})

	report := orch.Run(context.Background(), batchOf(rec), Single(domain.StageShiftToUTC), Options{})
	if report.State != domain.RunCompleted {
		t.Fatalf("expected completed run, got %s (%s)", report.State, report.AbortReason)
	}
	want := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	if !rec.CaptureUTC.Equal(want) {
		t.Fatalf("expected %v, got %v", want, rec.CaptureUTC)
	}
}

func TestSetTimeWritesTimezoneTags(t *testing.T) {
	rec := localRecord("/photos/a.jpg", time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	rec.CaptureUTC = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	rec.UTCShifted = true
	metadata := newFakeMetadata()
	orch := newOrchestrator(newFakeFS(rec.SourcePath), metadata, &fakeGeotagger{})

	report := orch.Run(context.Background(), batchOf(rec), Single(domain.StageSetTime), Options{Timezone: "Rome", DST: true})
	if report.State != domain.RunCompleted {
		t.Fatalf("expected completed run, got %s (%s)", report.State, report.AbortReason)
	}

	// Rome +01:00 with DST applies +02:00 to the timestamp.
	want := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	if !rec.CaptureLocal.Equal(want) {
		t.Fatalf("expected %v, got %v", want, rec.CaptureLocal)
	}

	writes := metadata.writes[rec.SourcePath]
	if len(writes) != 1 {
		t.Fatalf("expected 1 write, got %d", len(writes))
	}
	update := writes[0]
	if update.Offset == nil || update.Offset.Minutes != 60 || update.Offset.CityID != 19 {
		t.Fatalf("unexpected offset in write: %+v", update.Offset)
	}
	if !update.DST {
		t.Fatal("expected DST flag in write")
	}
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := localRecord("/photos/a.jpg", time.Now())
	orch := newOrchestrator(newFakeFS(rec.SourcePath), newFakeMetadata(), &fakeGeotagger{})

	report := orch.Run(ctx, batchOf(rec), ProcessSpec(true), Options{Timezone: "+02:00"})
	if report.State != domain.RunAborted {
		t.Fatalf("expected aborted run, got %s", report.State)
	}
}

func TestDryRunWritesNothing(t *testing.T) {
	rec := localRecord("/photos/IMG_0001.JPG", time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	filesystem := newFakeFS(rec.SourcePath)
	metadata := newFakeMetadata()
	orch := newOrchestrator(filesystem, metadata, &fakeGeotagger{})

	report := orch.Run(context.Background(), batchOf(rec), ProcessSpec(true), Options{Timezone: "+02:00", DryRun: true})
	if report.State != domain.RunCompleted {
		t.Fatalf("expected completed run, got %s (%s)", report.State, report.AbortReason)
	}
	if len(metadata.writes) != 0 {
		t.Fatalf("dry run wrote metadata: %v", metadata.writes)
	}
	if exists, _ := filesystem.Exists("/photos/IMG_0001.JPG"); !exists {
		t.Fatal("dry run moved the file")
	}
}

func TestProcessRequiresTimezoneUpfront(t *testing.T) {
	local := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	rec := localRecord("/photos/a.jpg", local)
	filesystem := newFakeFS(rec.SourcePath)
	metadata := newFakeMetadata()
	metadata.tags[rec.SourcePath] = Tags{OffsetTimeOriginal: "+02:00"}
	orch := newOrchestrator(filesystem, metadata, &fakeGeotagger{})

	report := orch.Run(context.Background(), batchOf(rec), ProcessSpec(true), Options{})
	if report.State != domain.RunAborted || report.AbortedStage != domain.StageSetTime {
		t.Fatalf("expected upfront abort for set-time, got %s at %s", report.State, report.AbortedStage)
	}
	if rec.Result(domain.StageShiftToUTC).Status != domain.StatusPending {
		t.Fatalf("shift ran before abort: %+v", rec.Result(domain.StageShiftToUTC))
	}
	if len(metadata.writes) != 0 {
		t.Fatalf("files mutated before abort: %v", metadata.writes)
	}
	if exists, _ := filesystem.Exists(rec.SourcePath); !exists {
		t.Fatal("file moved before abort")
	}
}

type recordingStore struct {
	mu        sync.Mutex
	saves     int
	forgotten []string
}

func (s *recordingStore) Load(records []*domain.PhotoRecord) error { return nil }

func (s *recordingStore) Save(records []*domain.PhotoRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	return nil
}

func (s *recordingStore) Forget(paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forgotten = append(s.forgotten, paths...)
	return nil
}

func TestRunForgetsMarkersOfMovedPaths(t *testing.T) {
	rec := localRecord("/photos/IMG_0001.jpg", time.Date(2024, 6, 1, 10, 0, 1, 0, time.UTC))
	store := &recordingStore{}
	orch := newOrchestrator(newFakeFS(rec.SourcePath), newFakeMetadata(), &fakeGeotagger{})
	orch.Store = store

	spec := Spec{domain.StageShiftToUTC, domain.StageOrganize, domain.StageRename}
	report := orch.Run(context.Background(), batchOf(rec), spec, Options{Timezone: "+02:00"})
	if report.State != domain.RunCompleted {
		t.Fatalf("expected completed run, got %s (%s)", report.State, report.AbortReason)
	}

	want := []string{"/photos/IMG_0001.jpg", "/photos/2024-06-01/IMG_0001.jpg"}
	if len(store.forgotten) != len(want) {
		t.Fatalf("expected %v forgotten, got %v", want, store.forgotten)
	}
	for i, path := range want {
		if store.forgotten[i] != path {
			t.Fatalf("expected %s forgotten at %d, got %s", path, i, store.forgotten[i])
		}
	}
}

func TestDryRunLeavesStoreUntouched(t *testing.T) {
	rec := localRecord("/photos/IMG_0001.jpg", time.Date(2024, 6, 1, 10, 0, 1, 0, time.UTC))
	store := &recordingStore{}
	orch := newOrchestrator(newFakeFS(rec.SourcePath), newFakeMetadata(), &fakeGeotagger{})
	orch.Store = store

	spec := Spec{domain.StageShiftToUTC, domain.StageOrganize, domain.StageRename}
	report := orch.Run(context.Background(), batchOf(rec), spec, Options{Timezone: "+02:00", DryRun: true})
	if report.State != domain.RunCompleted {
		t.Fatalf("expected completed run, got %s (%s)", report.State, report.AbortReason)
	}
	if store.saves != 0 || len(store.forgotten) != 0 {
		t.Fatalf("dry run touched the store: %d saves, %v forgotten", store.saves, store.forgotten)
	}
}

type failingStore struct{}

func (failingStore) Load(records []*domain.PhotoRecord) error { return errors.New("locked") }
func (failingStore) Save(records []*domain.PhotoRecord) error { return errors.New("locked") }
func (failingStore) Forget(paths []string) error              { return errors.New("locked") }

func TestRunSurvivesStoreFailure(t *testing.T) {
	rec := localRecord("/photos/a.jpg", time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	orch := newOrchestrator(newFakeFS(rec.SourcePath), newFakeMetadata(), &fakeGeotagger{})
	orch.Store = failingStore{}

	report := orch.Run(context.Background(), batchOf(rec), Single(domain.StageShiftToUTC), Options{Timezone: "+02:00"})
	if report.State != domain.RunCompleted {
		t.Fatalf("expected completed run despite store failure, got %s", report.State)
	}
}
