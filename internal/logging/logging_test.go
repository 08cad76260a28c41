package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestTraceIDRoundTrip(t *testing.T) {
	ctx := WithTraceID(context.Background(), "abc")
	if got := GetTraceID(ctx); got != "abc" {
		t.Fatalf("GetTraceID() = %q, want abc", got)
	}
	if got := GetTraceID(context.Background()); got != "" {
		t.Fatalf("GetTraceID(empty) = %q, want empty", got)
	}
}

func TestNewTraceIDUnique(t *testing.T) {
	a, b := NewTraceID(), NewTraceID()
	if a == "" || a == b {
		t.Fatalf("NewTraceID() returned %q and %q", a, b)
	}
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithOutput("portal", Config{Level: "debug", Format: "json"}, &buf)

	ctx := WithTraceID(context.Background(), "trace-1")
	l.WithContext(ctx).Info("hello")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if entry["service"] != "portal" {
		t.Errorf("service = %v, want portal", entry["service"])
	}
	if entry["trace_id"] != "trace-1" {
		t.Errorf("trace_id = %v, want trace-1", entry["trace_id"])
	}
}

func TestLogRequestLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithOutput("portal", Config{Level: "warn"}, &buf)

	l.LogRequest(context.Background(), http.MethodGet, "/vaults", 200, time.Millisecond)
	if buf.Len() != 0 {
		t.Fatalf("2xx request should log at debug, got %q", buf.String())
	}

	l.LogRequest(context.Background(), http.MethodGet, "/vaults", 502, time.Millisecond)
	if !strings.Contains(buf.String(), `"status":502`) {
		t.Fatalf("5xx request not logged: %q", buf.String())
	}
}

func TestInvalidLevelDefaultsToInfo(t *testing.T) {
	l := NewWithOutput("portal", Config{Level: "loud"}, &bytes.Buffer{})
	if l.GetLevel().String() != "info" {
		t.Fatalf("level = %s, want info", l.GetLevel())
	}
}
