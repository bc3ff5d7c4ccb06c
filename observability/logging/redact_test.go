package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestMaskFieldRedactsSensitiveValues(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{}))

	sensitiveToken := "bearer-9f2c1e8a7b"
	logger.Warn("rejected credentials",
		MaskField("token", sensitiveToken),
		slog.String("reason", "unit test"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log payload: %v", err)
	}

	if IsAllowlisted("token") {
		t.Fatalf("token should not be allowlisted for logging: %v", RedactionAllowlist())
	}

	raw := buf.Bytes()
	if bytes.Contains(raw, []byte(sensitiveToken)) {
		t.Fatalf("log output leaked sensitive token: %s", raw)
	}

	value, ok := entry["token"].(string)
	if !ok {
		t.Fatalf("expected string token attribute, got %T", entry["token"])
	}
	if value != RedactedValue {
		t.Fatalf("expected redacted token, got %q", value)
	}

	reason, _ := entry["reason"].(string)
	if reason != "unit test" {
		t.Fatalf("allowlisted reason mangled: %q", reason)
	}
}

func TestMaskValue(t *testing.T) {
	if got := MaskValue("secret"); got != RedactedValue {
		t.Fatalf("MaskValue(secret) = %q", got)
	}
	if got := MaskValue(""); got != "" {
		t.Fatalf("MaskValue(empty) = %q", got)
	}
	if got := MaskValue("   "); got != "   " {
		t.Fatalf("MaskValue(blank) = %q", got)
	}
}

func TestRedactionAllowlistIsSorted(t *testing.T) {
	keys := RedactionAllowlist()
	if len(keys) == 0 {
		t.Fatal("allowlist empty")
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Fatalf("allowlist not sorted: %v", keys)
		}
	}
	for _, key := range keys {
		if !IsAllowlisted(key) {
			t.Fatalf("listed key %q not allowlisted", key)
		}
	}
}
