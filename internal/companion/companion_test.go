package companion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"wayfare/api/internal/store"
)

func TestCompleteSendsConversation(t *testing.T) {
	var got chatRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "Try the morning market."}},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret-key", "test-model")
	reply, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "What should we do first?"}})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if reply != "Try the morning market." {
		t.Errorf("unexpected reply %q", reply)
	}
	if got.Model != "test-model" {
		t.Errorf("model not forwarded, got %q", got.Model)
	}
	if gotAuth != "Bearer secret-key" {
		t.Errorf("api key not forwarded, got %q", gotAuth)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "What should we do first?" {
		t.Errorf("conversation not forwarded: %+v", got.Messages)
	}
}

func TestCompleteUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", "m")
	if _, err := client.Complete(context.Background(), nil); err == nil {
		t.Fatal("expected error on upstream 503")
	} else if !strings.Contains(err.Error(), "503") {
		t.Errorf("error should mention the status, got %v", err)
	}
}

func TestAskPrependsTripContext(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "ok"}},
			},
		})
	}))
	defer srv.Close()

	travel := store.Travel{Title: "Kyoto in Autumn", Description: "Temples and food"}
	activities := []store.Activity{{Title: "Fushimi Inari"}}

	client := NewClient(srv.URL, "", "m")
	if _, err := client.Ask(context.Background(), travel, activities, []Message{{Role: "user", Content: "more ideas?"}}); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	if len(got.Messages) != 2 {
		t.Fatalf("expected system + user message, got %d", len(got.Messages))
	}
	if got.Messages[0].Role != "system" {
		t.Errorf("first message should be the system context")
	}
	if !strings.Contains(got.Messages[0].Content, "Kyoto in Autumn") || !strings.Contains(got.Messages[0].Content, "Fushimi Inari") {
		t.Errorf("trip context missing travel details: %q", got.Messages[0].Content)
	}
}

func TestConfigured(t *testing.T) {
	if NewClient("", "", "").Configured() {
		t.Error("empty base URL should not count as configured")
	}
	if !NewClient("http://localhost:1234", "", "m").Configured() {
		t.Error("client with a base URL should be configured")
	}
}
