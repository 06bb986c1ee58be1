package detect

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/db"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/index"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/logger"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/models"
)

type fakeStore struct {
	db.Service

	rules          map[string]int64
	ruleLookups    int
	violations     []*models.Violation
	deletedFiles   []uuid.UUID
	violationCount int64
}

func (f *fakeStore) GetOrCreateRule(_ context.Context, name, _ string) (int64, error) {
	f.ruleLookups++

	if f.rules == nil {
		f.rules = make(map[string]int64)
	}

	if id, ok := f.rules[name]; ok {
		return id, nil
	}

	id := int64(len(f.rules) + 1)
	f.rules[name] = id

	return id, nil
}

func (f *fakeStore) InsertViolations(_ context.Context, violations []*models.Violation) error {
	f.violations = append(f.violations, violations...)
	return nil
}

func (f *fakeStore) DeleteViolationsForFile(_ context.Context, fileID uuid.UUID) (int64, error) {
	f.deletedFiles = append(f.deletedFiles, fileID)
	return 0, nil
}

func (f *fakeStore) SetFileViolationCount(_ context.Context, _ uuid.UUID, count int64) error {
	f.violationCount = count
	return nil
}

type fakeIndex struct {
	index.Service

	flagged []string
	cleared []string
}

func (f *fakeIndex) FlagViolations(_ context.Context, _, _ string, recordIDs []string) error {
	f.flagged = append(f.flagged, recordIDs...)
	return nil
}

func (f *fakeIndex) ClearViolationFlags(_ context.Context, _, fileID string) (int64, error) {
	f.cleared = append(f.cleared, fileID)
	return 0, nil
}

// fakeEngine writes a script that emits the given stdout and exits with
// the given code, standing in for the real rule-matching subprocess.
func fakeEngine(t *testing.T, stdout string, exitCode int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "engine.sh")
	script := "#!/bin/sh\ncat <<'EOF'\n" + stdout + "EOF\n"

	if exitCode != 0 {
		script += "echo 'engine blew up' >&2\n"
	}

	script += "exit " + strconv.Itoa(exitCode) + "\n"

	require.NoError(t, os.WriteFile(path, []byte(script), 0o700))

	return path
}

func newTestAdapter(t *testing.T, store *fakeStore, search *fakeIndex, engine string) *Adapter {
	t.Helper()

	adapter, err := NewAdapter(store, search, &models.DetectionConfig{
		EngineCommand: engine,
		Timeout:       10 * time.Second,
	}, logger.NewTestLogger())
	require.NoError(t, err)

	return adapter
}

func TestRunRecordsViolations(t *testing.T) {
	engine := fakeEngine(t, strings.Join([]string{
		"rule,severity,record_id",
		"Suspicious Logon,high,101",
		"Suspicious Logon,high,102",
		"Encoded PowerShell,critical,101",
	}, "\n")+"\n", 0)

	store := &fakeStore{}
	search := &fakeIndex{}
	adapter := newTestAdapter(t, store, search, engine)

	file := &models.EvidenceFile{ID: uuid.New(), CaseID: 3}

	count, err := adapter.Run(context.Background(), file, "/tmp/spool.ndjson", "/tmp/corpus")
	require.NoError(t, err)

	assert.Equal(t, int64(3), count)
	assert.Equal(t, int64(3), store.violationCount)
	require.Len(t, store.violations, 3)
	assert.Equal(t, "101", store.violations[0].RecordID)
	assert.Equal(t, "high", store.violations[0].Severity)
	assert.Equal(t, int64(3), store.violations[0].CaseID)

	// Flags and rows come from the same output.
	assert.Equal(t, []string{"101", "102", "101"}, search.flagged)

	// Previous state was cleared in both stores before rewriting.
	assert.Equal(t, []uuid.UUID{file.ID}, store.deletedFiles)
	assert.Equal(t, []string{file.ID.String()}, search.cleared)
}

func TestRunCachesRuleLookups(t *testing.T) {
	engine := fakeEngine(t, strings.Join([]string{
		"rule,severity,record_id",
		"Suspicious Logon,high,1",
		"Suspicious Logon,high,2",
		"Suspicious Logon,high,3",
	}, "\n")+"\n", 0)

	store := &fakeStore{}
	adapter := newTestAdapter(t, store, &fakeIndex{}, engine)

	_, err := adapter.Run(context.Background(), &models.EvidenceFile{ID: uuid.New(), CaseID: 1}, "in", "rules")
	require.NoError(t, err)

	assert.Equal(t, 1, store.ruleLookups)
}

func TestRunDeduplicatesRepeatedHits(t *testing.T) {
	engine := fakeEngine(t, strings.Join([]string{
		"rule,severity,record_id",
		"Suspicious Logon,high,1",
		"Suspicious Logon,high,1",
	}, "\n")+"\n", 0)

	store := &fakeStore{}
	adapter := newTestAdapter(t, store, &fakeIndex{}, engine)

	count, err := adapter.Run(context.Background(), &models.EvidenceFile{ID: uuid.New(), CaseID: 1}, "in", "rules")
	require.NoError(t, err)

	assert.Equal(t, int64(1), count)
	assert.Len(t, store.violations, 1)
}

func TestRunEmptyOutputMeansNoViolations(t *testing.T) {
	engine := fakeEngine(t, "", 0)

	store := &fakeStore{}
	adapter := newTestAdapter(t, store, &fakeIndex{}, engine)

	count, err := adapter.Run(context.Background(), &models.EvidenceFile{ID: uuid.New(), CaseID: 1}, "in", "rules")
	require.NoError(t, err)

	assert.Zero(t, count)
	assert.Zero(t, store.violationCount)
}

func TestRunEngineFailure(t *testing.T) {
	engine := fakeEngine(t, "rule,severity,record_id\n", 2)

	store := &fakeStore{}
	adapter := newTestAdapter(t, store, &fakeIndex{}, engine)

	_, err := adapter.Run(context.Background(), &models.EvidenceFile{ID: uuid.New(), CaseID: 1}, "in", "rules")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine blew up")
}

func TestRunRejectsUnknownColumns(t *testing.T) {
	engine := fakeEngine(t, "foo,bar\n1,2\n", 0)

	store := &fakeStore{}
	adapter := newTestAdapter(t, store, &fakeIndex{}, engine)

	_, err := adapter.Run(context.Background(), &models.EvidenceFile{ID: uuid.New(), CaseID: 1}, "in", "rules")
	require.ErrorIs(t, err, errMissingColumns)
}

func TestRunAcceptsHeaderAliases(t *testing.T) {
	engine := fakeEngine(t, strings.Join([]string{
		"title,level,event_record_id",
		"Lateral Movement,medium,42",
	}, "\n")+"\n", 0)

	store := &fakeStore{}
	adapter := newTestAdapter(t, store, &fakeIndex{}, engine)

	count, err := adapter.Run(context.Background(), &models.EvidenceFile{ID: uuid.New(), CaseID: 1}, "in", "rules")
	require.NoError(t, err)

	assert.Equal(t, int64(1), count)
	assert.Equal(t, "medium", store.violations[0].Severity)
}
