package sniff

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/models"
)

func TestDetectSample(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		sample   string
		want     models.FileFormat
	}{
		{
			name:     "evtx magic",
			filename: "Security.evtx",
			sample:   "ElfFile\x00\x01\x02\x03binary follows",
			want:     models.FormatEVTX,
		},
		{
			name:     "evtx magic beats json-looking rename",
			filename: "events.json",
			sample:   "ElfFile\x00{\"fake\":true}",
			want:     models.FormatEVTX,
		},
		{
			name:     "event envelope ndjson",
			filename: "converted.jsonl",
			sample: `{"Event":{"System":{"EventID":4624,"Computer":"DC01"},"EventData":{"TargetUserName":"admin"}}}` + "\n" +
				`{"Event":{"System":{"EventID":4625,"Computer":"DC01"},"EventData":{}}}` + "\n",
			want: models.FormatEventNDJSON,
		},
		{
			name:     "flat ndjson",
			filename: "app.jsonl",
			sample:   `{"msg":"a","level":"info"}` + "\n" + `{"msg":"b","level":"warn"}` + "\n",
			want:     models.FormatNDJSON,
		},
		{
			name:     "generic json single object",
			filename: "registry_key.json",
			sample:   `{"key":"HKLM\\SOFTWARE\\Run","values":[{"name":"updater"}]}`,
			want:     models.FormatJSON,
		},
		{
			name:     "csv",
			filename: "proxy.csv",
			sample:   "timestamp,src,dst,bytes\n2024-01-01T00:00:00Z,10.0.0.1,8.8.8.8,100\n2024-01-01T00:00:01Z,10.0.0.2,1.1.1.1,240\n",
			want:     models.FormatDelimited,
		},
		{
			name:     "tsv",
			filename: "dns.tsv",
			sample:   "ts\tquery\tanswer\n1\texample.com\t93.184.216.34\n",
			want:     models.FormatDelimited,
		},
		{
			name:     "binary junk",
			filename: "image.bin",
			sample:   "\x00\x01\x02\x03\x04\x00\x00\xff",
			want:     models.FormatUnknown,
		},
		{
			name:     "empty",
			filename: "empty.log",
			sample:   "",
			want:     models.FormatUnknown,
		},
	}

	sniffers := Default()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectSample(sniffers, tt.filename, []byte(tt.sample))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEventEnvelopeBeatsFlatNDJSON(t *testing.T) {
	// Both sniffers accept well-formed per-line JSON; ordering must give
	// the envelope sniffer the win.
	sample := []byte(`{"Event":{"System":{"EventID":1}}}` + "\n" + `{"Event":{"System":{"EventID":2}}}` + "\n")

	got := DetectSample(Default(), "log.jsonl", sample)
	assert.Equal(t, models.FormatEventNDJSON, got)
}
