package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOllamaOracleGenerate(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]any{"response": `{"ok":true}`, "done": true})
	}))
	defer srv.Close()

	o := NewOllamaOracle(srv.URL+"/", "tiny", time.Second)
	text, err := o.Query(context.Background(), "hello", WorkingContext{Role: RoleArbiter})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if text != `{"ok":true}` {
		t.Fatalf("Query() = %q", text)
	}
	if got.Model != "tiny" || got.Prompt != "hello" || got.Stream || got.Format != "json" {
		t.Fatalf("unexpected request: %+v", got)
	}
	if got.Options.Temperature != 0.7 || got.Options.TopP != 0.9 {
		t.Fatalf("unexpected options: %+v", got.Options)
	}
}

func TestOllamaOracleFailureKinds(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{"unavailable", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}, ErrTransport},
		{"bad request", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}, ErrProvider},
		{"error field", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"error":"context window exceeded"}`))
		}, ErrProvider},
		{"empty", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"response":"  ","done":true}`))
		}, ErrProvider},
		{"slow", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}, ErrTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			o := NewOllamaOracle(srv.URL, "", 100*time.Millisecond)
			_, err := o.Query(context.Background(), "x", WorkingContext{Role: RoleActor, Actor: "wolf"})
			if !errors.Is(err, tc.want) {
				t.Fatalf("Query() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestOllamaOracleConnectionRefusedIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewOllamaOracle(url, "", time.Second).Query(context.Background(), "x", WorkingContext{Role: RoleArbiter})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("Query() error = %v, want ErrTransport", err)
	}
}

func TestOllamaOracleModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3.1"},{"name":"qwen2"}]}`))
	}))
	defer srv.Close()

	o := NewOllamaOracle(srv.URL, "", time.Second)
	models, err := o.Models(context.Background())
	if err != nil {
		t.Fatalf("Models() error = %v", err)
	}
	if len(models) != 2 || models[1] != "qwen2" {
		t.Fatalf("Models() = %v", models)
	}
	if err := o.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}
