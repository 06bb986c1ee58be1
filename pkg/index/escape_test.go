package index

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeQueryString(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{
			name:  "plain value untouched",
			value: "mimikatz",
			want:  "mimikatz",
		},
		{
			name:  "windows path",
			value: `C:\Windows\System32\cmd.exe`,
			want:  `C\:\\Windows\\System32\\cmd.exe`,
		},
		{
			name:  "wildcard and colon",
			value: "tcp://10.0.0.1:4444/*",
			want:  `tcp\:\/\/10.0.0.1\:4444\/\*`,
		},
		{
			name:  "boolean operators",
			value: "a&&b||c",
			want:  `a\&\&b\|\|c`,
		},
		{
			name:  "angle brackets removed",
			value: "<script>alert(1)</script>",
			want:  `scriptalert\(1\)\/script`,
		},
		{
			name:  "quotes and braces",
			value: `{"key":"value"}`,
			want:  `\{\"key\"\:\"value\"\}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EscapeQueryString(tt.value))
		})
	}
}

func TestEscapeQueryStringIdempotentOnPlain(t *testing.T) {
	// A value without reserved characters never grows escapes.
	v := "user-less value 10.0.0.1"
	assert.Equal(t, strings.Contains(EscapeQueryString("plainvalue"), "\\"), false)
	assert.Equal(t, `user\-less value 10.0.0.1`, EscapeQueryString(v))
}
