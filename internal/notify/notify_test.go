package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestPublishSendsExpectedPayload(t *testing.T) {
	var got payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(zap.NewNop(), srv.URL, "chat-1")
	n.Publish(context.Background(), TradeOpened("SPY", "IRON_CONDOR", time.Now()), false)

	if got.ChatID != "chat-1" {
		t.Fatalf("expected chat_id chat-1, got %s", got.ChatID)
	}
	if got.DisableNotification {
		t.Fatalf("expected disable_notification false")
	}
	if got.Text == "" {
		t.Fatalf("expected non-empty text")
	}
}

func TestPublishDropsSilentlyOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := New(zap.NewNop(), srv.URL, "chat-1")
	n.Publish(context.Background(), Shutdown(time.Now()), true) // must not panic or block
}

func TestPublishNoopWhenURLUnset(t *testing.T) {
	n := New(zap.NewNop(), "", "chat-1")
	n.Publish(context.Background(), Startup(time.Now()), false) // must not panic
}
