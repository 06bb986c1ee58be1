package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/models"
)

func TestExtractCanonicalEventLog(t *testing.T) {
	raw := []byte(`{
		"Event": {
			"System": {
				"TimeCreated": {"#attributes": {"SystemTime": "2024-03-01T10:00:00.123456Z"}},
				"Computer": "DC01.corp.local",
				"EventRecordID": 4625
			}
		}
	}`)

	fields := ExtractCanonical(models.FormatEventNDJSON, raw)

	assert.Equal(t, "2024-03-01T10:00:00.123456Z", fields.Timestamp)
	assert.Equal(t, "DC01.corp.local", fields.Host)
	assert.Equal(t, "4625", fields.SourceRecordID)
}

func TestExtractCanonicalFallbackOrder(t *testing.T) {
	// @timestamp wins over a later alternative when both are present.
	raw := []byte(`{"@timestamp":"2024-03-01T10:00:00Z","timestamp":"1999-01-01T00:00:00Z","host":{"name":"ws01"},"record_id":"7"}`)

	fields := ExtractCanonical(models.FormatNDJSON, raw)

	assert.Equal(t, "2024-03-01T10:00:00Z", fields.Timestamp)
	assert.Equal(t, "ws01", fields.Host)
	assert.Equal(t, "7", fields.SourceRecordID)
}

func TestExtractCanonicalSkipsEmptyValues(t *testing.T) {
	raw := []byte(`{"@timestamp":"","timestamp":"2024-03-01T10:00:00Z","host":"","hostname":"ws02"}`)

	fields := ExtractCanonical(models.FormatNDJSON, raw)

	assert.Equal(t, "2024-03-01T10:00:00Z", fields.Timestamp)
	assert.Equal(t, "ws02", fields.Host)
	assert.Empty(t, fields.SourceRecordID)
}

func TestNormalizeTimestampVariants(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"rfc3339 passthrough", "2024-03-01T10:00:00Z", "2024-03-01T10:00:00Z"},
		{"space separated", "2024-03-01 10:00:00", "2024-03-01T10:00:00Z"},
		{"us style", "03/01/2024 10:00:00", "2024-03-01T10:00:00Z"},
		{"offset normalized to utc", "2024-03-01T12:00:00+02:00", "2024-03-01T10:00:00Z"},
		{"unparseable passes through", "last tuesday", "last tuesday"},
		{"empty stays empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeTimestamp(tt.input))
		})
	}
}

func TestExtractCanonicalMissingEverything(t *testing.T) {
	fields := ExtractCanonical(models.FormatNDJSON, []byte(`{"message":"hello"}`))

	assert.Empty(t, fields.Timestamp)
	assert.Empty(t, fields.Host)
	assert.Empty(t, fields.SourceRecordID)
}
