package rules

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/logger"
)

func writeRule(t *testing.T, dir, name, title string) {
	t.Helper()

	content := "title: " + title + "\nid: " + name + "\nlevel: high\ndetection:\n  condition: selection\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yml"), []byte(content), 0o600))
}

func TestBuildIsDeterministic(t *testing.T) {
	srcA := t.TempDir()
	srcB := t.TempDir()
	writeRule(t, srcA, "rule_a", "Suspicious Logon")
	writeRule(t, srcB, "rule_b", "Encoded PowerShell")

	builderOne := NewBuilder(t.TempDir(), logger.NewTestLogger())
	builderTwo := NewBuilder(t.TempDir(), logger.NewTestLogger())

	m1, err := builderOne.Build(context.Background(), []string{srcA, srcB})
	require.NoError(t, err)

	// Source order must not change the version.
	m2, err := builderTwo.Build(context.Background(), []string{srcB, srcA})
	require.NoError(t, err)

	assert.Equal(t, m1.Version, m2.Version)
	assert.Equal(t, 2, m1.RuleCount)
}

func TestBuildReusesExistingVersion(t *testing.T) {
	src := t.TempDir()
	writeRule(t, src, "rule_a", "Suspicious Logon")

	builder := NewBuilder(t.TempDir(), logger.NewTestLogger())

	m1, err := builder.Build(context.Background(), []string{src})
	require.NoError(t, err)

	m2, err := builder.Build(context.Background(), []string{src})
	require.NoError(t, err)

	assert.Equal(t, m1.Version, m2.Version)

	// One immutable artifact on disk, not two.
	entries, err := os.ReadDir(filepath.Dir(builder.CorpusDir(m1.Version)))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestBuildVersionChangesWithContent(t *testing.T) {
	src := t.TempDir()
	writeRule(t, src, "rule_a", "Suspicious Logon")

	builder := NewBuilder(t.TempDir(), logger.NewTestLogger())

	m1, err := builder.Build(context.Background(), []string{src})
	require.NoError(t, err)

	writeRule(t, src, "rule_a", "Suspicious Logon v2")

	m2, err := builder.Build(context.Background(), []string{src})
	require.NoError(t, err)

	assert.NotEqual(t, m1.Version, m2.Version)
}

func TestBuildFlattensCollidingPaths(t *testing.T) {
	srcA := t.TempDir()
	srcB := t.TempDir()
	writeRule(t, srcA, "shared", "From A")
	writeRule(t, srcB, "shared", "From B")

	builder := NewBuilder(t.TempDir(), logger.NewTestLogger())

	m, err := builder.Build(context.Background(), []string{srcA, srcB})
	require.NoError(t, err)
	assert.Equal(t, 2, m.RuleCount)

	entries, err := os.ReadDir(builder.CorpusDir(m.Version))
	require.NoError(t, err)

	// Both rules plus the manifest survive.
	assert.Len(t, entries, 3)
}

func TestLoadRuleMetadata(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "rule_a", "Suspicious Logon")

	meta, err := LoadRuleMetadata(filepath.Join(dir, "rule_a.yml"))
	require.NoError(t, err)
	assert.Equal(t, "Suspicious Logon", meta.Title)
	assert.Equal(t, "high", meta.Level)
}
