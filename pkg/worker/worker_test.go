package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/db"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/index"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/logger"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/models"
)

type fakeStore struct {
	db.Service

	files map[uuid.UUID]*models.EvidenceFile

	locked      bool
	nonTerminal int64
	stale       []*models.EvidenceFile

	statuses          map[uuid.UUID][]models.FileStatus
	failureReasons    map[uuid.UUID]string
	refreshedCases    []int64
	resetFiles        []uuid.UUID
	tagsCleared       []uuid.UUID
	violationsCleared []uuid.UUID
	matchesCleared    []uuid.UUID
}

func newFakeStore(files ...*models.EvidenceFile) *fakeStore {
	s := &fakeStore{
		files:          make(map[uuid.UUID]*models.EvidenceFile),
		statuses:       make(map[uuid.UUID][]models.FileStatus),
		failureReasons: make(map[uuid.UUID]string),
	}

	for _, f := range files {
		s.files[f.ID] = f
	}

	return s
}

func (s *fakeStore) GetFile(_ context.Context, id uuid.UUID) (*models.EvidenceFile, error) {
	file, ok := s.files[id]
	if !ok {
		return nil, db.ErrNotFound
	}

	return file, nil
}

func (s *fakeStore) UpdateFileStatus(_ context.Context, id uuid.UUID, status models.FileStatus, reason string) error {
	s.statuses[id] = append(s.statuses[id], status)

	if reason != "" {
		s.failureReasons[id] = reason
	}

	return nil
}

func (s *fakeStore) RefreshCaseAggregates(_ context.Context, caseID int64) error {
	s.refreshedCases = append(s.refreshedCases, caseID)
	return nil
}

func (s *fakeStore) AcquireCaseLock(_ context.Context, _ int64) (db.UnlockFunc, error) {
	if s.locked {
		return nil, db.ErrCaseLocked
	}

	s.locked = true

	return func(context.Context) error {
		s.locked = false
		return nil
	}, nil
}

func (s *fakeStore) CountNonTerminalFiles(_ context.Context, _ int64) (int64, error) {
	return s.nonTerminal, nil
}

func (s *fakeStore) ListCaseFiles(_ context.Context, caseID int64, _ bool) ([]*models.EvidenceFile, error) {
	var out []*models.EvidenceFile

	for _, f := range s.files {
		if f.CaseID == caseID {
			out = append(out, f)
		}
	}

	return out, nil
}

func (s *fakeStore) ResetFileForReprocess(_ context.Context, id uuid.UUID) error {
	s.resetFiles = append(s.resetFiles, id)
	return nil
}

func (s *fakeStore) DeleteTagsForFile(_ context.Context, id uuid.UUID) (int64, error) {
	s.tagsCleared = append(s.tagsCleared, id)
	return 0, nil
}

func (s *fakeStore) DeleteViolationsForFile(_ context.Context, id uuid.UUID) (int64, error) {
	s.violationsCleared = append(s.violationsCleared, id)
	return 0, nil
}

func (s *fakeStore) DeleteMatchesForFile(_ context.Context, id uuid.UUID) (int64, error) {
	s.matchesCleared = append(s.matchesCleared, id)
	return 0, nil
}

func (s *fakeStore) ListStaleFiles(_ context.Context, _ time.Duration) ([]*models.EvidenceFile, error) {
	return s.stale, nil
}

type fakeSearch struct {
	index.Service

	docsDeleted []string
}

func (s *fakeSearch) DeleteFileDocs(_ context.Context, _, fileID string) error {
	s.docsDeleted = append(s.docsDeleted, fileID)
	return nil
}

type fakeProcessor struct {
	parsed, acked int64
	err           error
	runs          int
}

func (p *fakeProcessor) Run(_ context.Context, _ *models.EvidenceFile) (int64, int64, error) {
	p.runs++
	return p.parsed, p.acked, p.err
}

type fakeDetector struct {
	violations int64
	err        error
	runs       int
}

func (d *fakeDetector) Run(_ context.Context, _ *models.EvidenceFile, _, _ string) (int64, error) {
	d.runs++
	return d.violations, d.err
}

type fakeHunter struct {
	matches int64
	err     error
	runs    int

	caseRuns      int
	caseHunted    []int64
	huntHiddenToo bool
}

func (h *fakeHunter) HuntFile(_ context.Context, _ *models.EvidenceFile) (int64, error) {
	h.runs++
	return h.matches, h.err
}

func (h *fakeHunter) RehuntCase(_ context.Context, caseID int64, includeHidden bool) (int64, error) {
	h.caseRuns++
	h.caseHunted = append(h.caseHunted, caseID)
	h.huntHiddenToo = includeHidden

	return h.matches, h.err
}

type fakeQueue struct {
	jobs []*models.Job
}

func (q *fakeQueue) Enqueue(_ context.Context, job *models.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

type testHarness struct {
	service   *Service
	store     *fakeStore
	search    *fakeSearch
	processor *fakeProcessor
	detector  *fakeDetector
	hunter    *fakeHunter
	queue     *fakeQueue
}

func newHarness(store *fakeStore) *testHarness {
	h := &testHarness{
		store:     store,
		search:    &fakeSearch{},
		processor: &fakeProcessor{parsed: 10, acked: 10},
		detector:  &fakeDetector{violations: 2},
		hunter:    &fakeHunter{matches: 3},
		queue:     &fakeQueue{},
	}

	cfg := &Config{}
	cfg.SetDefaults()

	h.service = &Service{
		store:     store,
		search:    h.search,
		processor: h.processor,
		detector:  h.detector,
		hunter:    h.hunter,
		queue:     h.queue,
		cfg:       cfg,
		corpusDir: "/var/lib/casescope/rules/corpus-test",
		metrics:   NewMetrics(prometheus.NewRegistry()),
		logger:    logger.NewTestLogger(),
	}

	return h
}

func fullJob(file *models.EvidenceFile) *models.Job {
	return &models.Job{ID: uuid.New(), CaseID: file.CaseID, FileID: file.ID, Operation: models.OperationFull}
}

func TestHandleFullJobCompletes(t *testing.T) {
	file := &models.EvidenceFile{ID: uuid.New(), CaseID: 1, Filename: "security.evtx"}
	h := newHarness(newFakeStore(file))

	err := h.service.Handle(context.Background(), fullJob(file))
	require.NoError(t, err)

	assert.Equal(t, []models.FileStatus{
		models.FileStatusDetecting,
		models.FileStatusHunting,
		models.FileStatusCompleted,
	}, h.store.statuses[file.ID])
	assert.Equal(t, []int64{1}, h.store.refreshedCases)
	assert.Equal(t, 1, h.detector.runs)
	assert.Equal(t, 1, h.hunter.runs)
}

func TestHandleFullJobPipelineFailure(t *testing.T) {
	file := &models.EvidenceFile{ID: uuid.New(), CaseID: 1}
	h := newHarness(newFakeStore(file))
	h.processor.err = errors.New("converter failed: exit status 1")

	err := h.service.Handle(context.Background(), fullJob(file))
	require.Error(t, err)

	assert.Equal(t, []models.FileStatus{models.FileStatusFailed}, h.store.statuses[file.ID])
	assert.Contains(t, h.store.failureReasons[file.ID], "converter failed")
	// Later stages never ran.
	assert.Zero(t, h.detector.runs)
	assert.Zero(t, h.hunter.runs)
}

func TestHandleEmptyFileSkipsDetectAndHunt(t *testing.T) {
	file := &models.EvidenceFile{ID: uuid.New(), CaseID: 1}
	h := newHarness(newFakeStore(file))
	h.processor.parsed = 0
	h.processor.acked = 0

	err := h.service.Handle(context.Background(), fullJob(file))
	require.NoError(t, err)

	assert.Equal(t, []models.FileStatus{models.FileStatusCompleted}, h.store.statuses[file.ID])
	assert.Zero(t, h.detector.runs)
	assert.Zero(t, h.hunter.runs)
}

func TestDetectFailureStillHunts(t *testing.T) {
	file := &models.EvidenceFile{ID: uuid.New(), CaseID: 1}
	h := newHarness(newFakeStore(file))
	h.detector.err = errors.New("engine failed")

	err := h.service.Handle(context.Background(), fullJob(file))
	require.Error(t, err)

	// Hunt ran and its results stand, but the file still fails so the
	// detection gap is visible.
	assert.Equal(t, 1, h.hunter.runs)
	assert.Equal(t, []models.FileStatus{
		models.FileStatusDetecting,
		models.FileStatusHunting,
		models.FileStatusFailed,
	}, h.store.statuses[file.ID])
}

func TestDetectFailureStopsWhenConfigured(t *testing.T) {
	file := &models.EvidenceFile{ID: uuid.New(), CaseID: 1}
	h := newHarness(newFakeStore(file))
	h.service.cfg.Detection.HaltHuntOnDetectFailure = true
	h.detector.err = errors.New("engine failed")

	err := h.service.Handle(context.Background(), fullJob(file))
	require.Error(t, err)

	assert.Zero(t, h.hunter.runs)
	assert.Equal(t, models.FileStatusFailed, h.store.statuses[file.ID][len(h.store.statuses[file.ID])-1])
}

func TestHandleMissingFileAcks(t *testing.T) {
	h := newHarness(newFakeStore())

	err := h.service.Handle(context.Background(), &models.Job{
		ID: uuid.New(), CaseID: 1, FileID: uuid.New(), Operation: models.OperationFull,
	})

	// Deleted files are not an error worth redelivering.
	require.NoError(t, err)
}

func TestHuntOnlyJob(t *testing.T) {
	file := &models.EvidenceFile{ID: uuid.New(), CaseID: 1, Status: models.FileStatusCompleted}
	h := newHarness(newFakeStore(file))

	err := h.service.Handle(context.Background(), &models.Job{
		ID: uuid.New(), CaseID: 1, FileID: file.ID, Operation: models.OperationHuntOnly,
	})
	require.NoError(t, err)

	assert.Zero(t, h.processor.runs)
	assert.Zero(t, h.detector.runs)
	assert.Equal(t, 1, h.hunter.runs)
	assert.Equal(t, []models.FileStatus{
		models.FileStatusHunting,
		models.FileStatusCompleted,
	}, h.store.statuses[file.ID])
}
