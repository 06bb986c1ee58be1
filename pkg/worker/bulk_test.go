package worker

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/models"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/queue"
)

func caseJob(op models.Operation) *models.Job {
	return &models.Job{ID: uuid.New(), CaseID: 9, Operation: op}
}

func completedFile(caseID int64) *models.EvidenceFile {
	return &models.EvidenceFile{ID: uuid.New(), CaseID: caseID, Status: models.FileStatusCompleted}
}

func TestReindexCaseClearsAndFansOut(t *testing.T) {
	fileA := completedFile(9)
	fileB := completedFile(9)
	h := newHarness(newFakeStore(fileA, fileB))

	err := h.service.Handle(context.Background(), caseJob(models.OperationReindexCase))
	require.NoError(t, err)

	// Per-file derived state was cleared everywhere before re-queueing.
	assert.ElementsMatch(t, []string{fileA.ID.String(), fileB.ID.String()}, h.search.docsDeleted)
	assert.ElementsMatch(t, []uuid.UUID{fileA.ID, fileB.ID}, h.store.tagsCleared)
	assert.ElementsMatch(t, []uuid.UUID{fileA.ID, fileB.ID}, h.store.violationsCleared)
	assert.ElementsMatch(t, []uuid.UUID{fileA.ID, fileB.ID}, h.store.matchesCleared)
	assert.ElementsMatch(t, []uuid.UUID{fileA.ID, fileB.ID}, h.store.resetFiles)

	require.Len(t, h.queue.jobs, 2)

	for _, job := range h.queue.jobs {
		assert.Equal(t, models.OperationFull, job.Operation)
		assert.Equal(t, int64(9), job.CaseID)
	}

	// The lock was released.
	assert.False(t, h.store.locked)
}

func TestRehuntCaseRunsHunterUnderLock(t *testing.T) {
	file := completedFile(9)
	h := newHarness(newFakeStore(file))

	job := caseJob(models.OperationHuntCase)
	job.IncludeHidden = true

	err := h.service.Handle(context.Background(), job)
	require.NoError(t, err)

	// The hunter owns the clear-then-rewrite sequence; the case job runs
	// it synchronously instead of fanning out per-file jobs.
	assert.Equal(t, 1, h.hunter.caseRuns)
	assert.Equal(t, []int64{9}, h.hunter.caseHunted)
	assert.True(t, h.hunter.huntHiddenToo)
	assert.Empty(t, h.queue.jobs)

	assert.Equal(t, []int64{9}, h.store.refreshedCases)
	assert.False(t, h.store.locked)
}

func TestRedetectCaseScopesToEligibleFiles(t *testing.T) {
	visible := completedFile(9)
	hidden := completedFile(9)
	hidden.Hidden = true

	h := newHarness(newFakeStore(visible, hidden))

	err := h.service.Handle(context.Background(), caseJob(models.OperationDetectCase))
	require.NoError(t, err)

	// Only the re-detected file is touched; the detect stage clears its
	// rows and flags when the job runs. The hidden file keeps its
	// previous, still-consistent results.
	require.Len(t, h.queue.jobs, 1)
	assert.Equal(t, models.OperationDetectOnly, h.queue.jobs[0].Operation)
	assert.Equal(t, visible.ID, h.queue.jobs[0].FileID)
	assert.Equal(t, []models.FileStatus{models.FileStatusQueued}, h.store.statuses[visible.ID])
	assert.Empty(t, h.store.statuses[hidden.ID])
	assert.Empty(t, h.store.violationsCleared)
}

func TestCaseJobYieldsWhenLocked(t *testing.T) {
	h := newHarness(newFakeStore(completedFile(9)))
	h.store.locked = true

	err := h.service.Handle(context.Background(), caseJob(models.OperationReindexCase))
	require.ErrorIs(t, err, queue.ErrRetryLater)

	assert.Empty(t, h.queue.jobs)
}

func TestCaseJobYieldsWhileFilesInFlight(t *testing.T) {
	h := newHarness(newFakeStore(completedFile(9)))
	h.store.nonTerminal = 3

	err := h.service.Handle(context.Background(), caseJob(models.OperationHuntCase))
	require.ErrorIs(t, err, queue.ErrRetryLater)

	// Nothing ran: yielding must leave state untouched.
	assert.Zero(t, h.hunter.caseRuns)
	// The lock was released so the retry can take it.
	assert.False(t, h.store.locked)
}

func TestEligibleFilesHiddenAndFailed(t *testing.T) {
	h := newHarness(newFakeStore())

	visible := completedFile(9)
	hidden := completedFile(9)
	hidden.Hidden = true
	failed := &models.EvidenceFile{ID: uuid.New(), CaseID: 9, Status: models.FileStatusFailed, Hidden: true}

	files := []*models.EvidenceFile{visible, hidden, failed}

	reindex := h.service.eligibleFiles(caseJob(models.OperationReindexCase), files)
	assert.ElementsMatch(t, []*models.EvidenceFile{visible, failed}, reindex)

	rehunt := h.service.eligibleFiles(caseJob(models.OperationHuntCase), files)
	assert.ElementsMatch(t, []*models.EvidenceFile{visible}, rehunt)

	withHidden := caseJob(models.OperationHuntCase)
	withHidden.IncludeHidden = true
	rehuntAll := h.service.eligibleFiles(withHidden, files)
	assert.ElementsMatch(t, []*models.EvidenceFile{visible, hidden}, rehuntAll)
}

func TestSweepResetsStaleFiles(t *testing.T) {
	stale := &models.EvidenceFile{ID: uuid.New(), CaseID: 4, Status: models.FileStatusIndexing}
	h := newHarness(newFakeStore())
	h.store.stale = []*models.EvidenceFile{stale}

	err := h.service.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{stale.ID}, h.store.resetFiles)
	require.Len(t, h.queue.jobs, 1)
	assert.Equal(t, models.OperationFull, h.queue.jobs[0].Operation)
	assert.Equal(t, stale.ID, h.queue.jobs[0].FileID)
}

func TestConcurrentBulkOperationsSerialize(t *testing.T) {
	file := completedFile(9)
	h := newHarness(newFakeStore(file))

	// First bulk operation holds the lock; a second arriving while it
	// runs must yield, not interleave.
	unlock, err := h.store.AcquireCaseLock(context.Background(), 9)
	require.NoError(t, err)

	err = h.service.Handle(context.Background(), caseJob(models.OperationDetectCase))
	require.ErrorIs(t, err, queue.ErrRetryLater)
	assert.Empty(t, h.queue.jobs)

	require.NoError(t, unlock(context.Background()))

	// After release the retry proceeds.
	err = h.service.Handle(context.Background(), caseJob(models.OperationDetectCase))
	require.NoError(t, err)
	require.Len(t, h.queue.jobs, 1)
}
