package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// JSONClient Tests
// =============================================================================

func TestNewJSONClient(t *testing.T) {
	client := NewJSONClient(JSONClientConfig{
		BaseURL: "http://localhost:8080/",
		Timeout: 10 * time.Second,
	})

	if client == nil {
		t.Fatal("NewJSONClient() returned nil")
	}
	if client.BaseURL() != "http://localhost:8080" {
		t.Errorf("baseURL = %s, want trailing slash trimmed", client.BaseURL())
	}
	if client.httpClient.Timeout != 10*time.Second {
		t.Errorf("timeout = %s, want 10s", client.httpClient.Timeout)
	}
}

func TestNewJSONClient_Defaults(t *testing.T) {
	client := NewJSONClient(JSONClientConfig{BaseURL: "http://localhost"})
	if client.httpClient.Timeout != 15*time.Second {
		t.Errorf("default timeout = %s, want 15s", client.httpClient.Timeout)
	}
}

func TestJSONClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("Method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/test" {
			t.Errorf("Path = %s, want /test", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer server.Close()

	client := NewJSONClient(JSONClientConfig{BaseURL: server.URL})

	resp, err := client.Get(context.Background(), "/test")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
}

func TestJSONClient_PostWithHook(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Method = %s, want POST", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %s, want application/json", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("Authorization = %s, want Bearer key", r.Header.Get("Authorization"))
		}

		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["key"] != "value" {
			t.Errorf("body[key] = %s, want value", body["key"])
		}

		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewJSONClient(JSONClientConfig{
		BaseURL: server.URL,
		Hook: func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer key")
		},
	})

	resp, err := client.Post(context.Background(), "/test", map[string]string{"key": "value"})
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d, want 201", resp.StatusCode)
	}
}

func TestJSONClient_NoRetry(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewJSONClient(JSONClientConfig{BaseURL: server.URL})
	resp, err := client.Put(context.Background(), "/test", map[string]string{})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	resp.Body.Close()

	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestDecodeResponse_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"message": "hello"})
	}))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("http.Get() error = %v", err)
	}

	var result map[string]string
	if err := DecodeResponse(resp, &result); err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	if result["message"] != "hello" {
		t.Errorf("result[message] = %s, want hello", result["message"])
	}
}

func TestDecodeResponse_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"title":"Member Exists"}`))
	}))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("http.Get() error = %v", err)
	}

	err = DecodeResponse(resp, nil)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("DecodeResponse() error = %v, want *StatusError", err)
	}
	if statusErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", statusErr.StatusCode)
	}
	if !strings.Contains(string(statusErr.Body), "Member Exists") {
		t.Errorf("Body = %s", statusErr.Body)
	}
}

func TestReadAllStrict(t *testing.T) {
	if _, err := ReadAllStrict(strings.NewReader("12345"), 4); !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("ReadAllStrict() error = %v, want ErrBodyTooLarge", err)
	}
	data, err := ReadAllStrict(strings.NewReader("1234"), 4)
	if err != nil || string(data) != "1234" {
		t.Fatalf("ReadAllStrict() = %q, %v", data, err)
	}
}

func TestReadAllWithLimit(t *testing.T) {
	data, truncated, err := ReadAllWithLimit(strings.NewReader("abcdef"), 3)
	if err != nil {
		t.Fatalf("ReadAllWithLimit() error = %v", err)
	}
	if !truncated || string(data) != "abc" {
		t.Fatalf("ReadAllWithLimit() = %q, truncated=%v", data, truncated)
	}
}
