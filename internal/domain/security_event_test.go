package domain

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSecurityEvent_Normalize(t *testing.T) {
	t.Run("keeps_standard_values", func(t *testing.T) {
		e := &SecurityEvent{Kind: EventCSRFRejected, Reason: "missing_token", Method: "PATCH", Path: "/lessons/12", RemoteAddr: "203.0.113.7", RequestID: "req-1"}
		want := *e
		e.Normalize()
		assert.Equal(t, want, *e)
	})

	t.Run("unknown_method_becomes_other", func(t *testing.T) {
		for _, m := range []string{"VERSION-CONTROL", "post", ""} {
			e := &SecurityEvent{Method: m}
			e.Normalize()
			assert.Equal(t, MethodOther, e.Method, m)
		}
	})

	t.Run("clips_to_column_widths", func(t *testing.T) {
		e := &SecurityEvent{
			Method:     "POST",
			Path:       "/" + strings.Repeat("p", 5000),
			RemoteAddr: strings.Repeat("1", 100),
			RequestID:  strings.Repeat("é", 300),
		}
		e.Normalize()
		assert.Equal(t, maxPathLen, utf8.RuneCountInString(e.Path))
		assert.Len(t, e.RemoteAddr, maxRemoteAddrLen)
		assert.Equal(t, maxRequestIDLen, utf8.RuneCountInString(e.RequestID))
		assert.True(t, utf8.ValidString(e.RequestID))
	})

	t.Run("strips_bytes_postgres_rejects", func(t *testing.T) {
		e := &SecurityEvent{Method: "POST", Path: "/lessons/\x00\xff12"}
		e.Normalize()
		assert.Equal(t, "/lessons/�12", e.Path)
	})
}
