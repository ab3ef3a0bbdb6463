package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizedEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"user@example.com", "u***@*******.com"},
		{"a@b.com", "a@*.com"},
		{"no-at-sign", "[invalid-email]"},
		{"@example.com", "[invalid-email]"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizedEmail(tt.in))
		})
	}
}

func TestMaskIdentifier(t *testing.T) {
	assert.Equal(t, "u***@*******.com", MaskIdentifier("user@example.com"))
	assert.Equal(t, "i*****1", MaskIdentifier("ivanov1"))
	assert.Equal(t, "**", MaskIdentifier("ab"))
}

func TestIsSensitiveQuery(t *testing.T) {
	assert.True(t, IsSensitiveQuery("token=abc"))
	assert.True(t, IsSensitiveQuery("Email=x@y.z"))
	assert.False(t, IsSensitiveQuery("page=2&limit=10"))
}

func TestAuditLogger_MasksIdentifierAndSetsLevel(t *testing.T) {
	var buf bytes.Buffer
	audit := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	audit.Log(context.Background(), AuditEvent{
		EventType:     EventLogin,
		Identifier:    "user@example.com",
		IPAddress:     "203.0.113.1",
		FailureReason: "invalid_credentials",
	})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "login", entry["event_type"])
	assert.Equal(t, "u***@*******.com", entry["identifier"])
	assert.Equal(t, "security", entry["audit"])
}
