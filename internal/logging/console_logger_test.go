package logging

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRedactSensitiveData(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		secret  string
		wantSub string
	}{
		{"bearer", "Authorization: Bearer abc.def-ghi", "abc.def-ghi", "[REDACTED]"},
		{"basic", "header Basic YWxpY2U6czNjcmV0", "YWxpY2U6czNjcmV0", "Basic [REDACTED]"},
		{"refresh token", `{"refresh_token":"r-123"}`, "r-123", "refresh_token=[REDACTED]"},
		{"password", "password=hunter2&user=alice", "hunter2", "password=[REDACTED]"},
		{"ticket", "GET /content?alf_ticket=TICKET_0a1b2c", "TICKET_0a1b2c", "alf_ticket=[REDACTED]"},
		{"api secret", "apiSecret: s3cr3t", "s3cr3t", "[REDACTED]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := redactSensitiveData(tt.input)
			if strings.Contains(got, tt.secret) {
				t.Errorf("secret leaked: %q", got)
			}
			if !strings.Contains(got, tt.wantSub) {
				t.Errorf("redacted output %q does not contain %q", got, tt.wantSub)
			}
		})
	}
}

func TestConsoleLogger_FormatsFieldsAndTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsoleLogger(ConsoleLoggerConfig{
		Writer:          &buf,
		Level:           INFO,
		RedactSensitive: true,
	})

	logger.WithTraceID("abc").Info("connect", F("account", "alice"), F("auth", "Bearer tok"))
	out := buf.String()

	if !strings.Contains(out, "[abc]") {
		t.Errorf("short trace ID missing: %q", out)
	}
	if !strings.Contains(out, "account=alice") {
		t.Errorf("field missing: %q", out)
	}
	if strings.Contains(out, "tok") {
		t.Errorf("token leaked: %q", out)
	}
}

func TestConsoleLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsoleLogger(ConsoleLoggerConfig{Writer: &buf, Level: WARN})

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message should be filtered")
	}
	if !strings.Contains(out, "shown") {
		t.Error("warn message missing")
	}
}

func TestDebugTransport_LogsRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	var buf bytes.Buffer
	logger := NewConsoleLogger(ConsoleLoggerConfig{Writer: &buf, Level: DEBUG, RedactSensitive: true})
	client := &http.Client{Transport: NewDebugTransport(nil, logger)}

	resp, err := client.Get(server.URL + "/nodes?alf_ticket=TICKET_123")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	out := buf.String()
	if !strings.Contains(out, "status=204") {
		t.Errorf("status not logged: %q", out)
	}
	if strings.Contains(out, "TICKET_123") {
		t.Errorf("ticket leaked: %q", out)
	}
}
