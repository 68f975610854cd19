package external

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atlas-desktop/options-engine/internal/apperr"
	"github.com/atlas-desktop/options-engine/internal/domain"
	"go.uber.org/zap"
)

func TestParseVerdictMapsMixedLanguage(t *testing.T) {
	cases := map[string]domain.AIVerdict{
		"APPROVE":   domain.VerdictApprove,
		"SCHVALENO": domain.VerdictApprove,
		"UPRAVIT":   domain.VerdictRevise,
		"REJECT":    domain.VerdictReject,
		"ZAMITNUTO": domain.VerdictReject,
		"garbage":   domain.VerdictReject,
		"":          domain.VerdictReject,
	}
	for raw, want := range cases {
		if got := parseVerdict(raw); got != want {
			t.Errorf("parseVerdict(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestAskMapsUnparsableBodyToReject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	a := NewAdvisor(zap.NewNop(), "test", srv.URL, "key", 10.0, 0.01, 60)
	resp, err := a.Ask(context.Background(), "is SPY 455/460 credit call safe?")
	if err != nil {
		t.Fatalf("expected nil error on unparsable body, got %v", err)
	}
	if resp.Verdict != domain.VerdictReject {
		t.Fatalf("expected REJECT on unparsable body, got %v", resp.Verdict)
	}
}

func TestAskDecodesApproveVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(rawAdvisorResponse{
			Verdict:         "APPROVE",
			ConfidenceScore: 82,
			Strategy:        "VERTICAL_CREDIT_CALL",
		})
	}))
	defer srv.Close()

	a := NewAdvisor(zap.NewNop(), "test", srv.URL, "key", 10.0, 0.01, 60)
	resp, err := a.Ask(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if resp.Verdict != domain.VerdictApprove || resp.ConfidenceScore != 82 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestAskReturnsErrAIUnavailableWhenBudgetExhausted(t *testing.T) {
	a := NewAdvisor(zap.NewNop(), "test", "http://unused", "key", 1.0, 1.0, 60)
	a.budget.RecordUsage(1.0)

	if a.CanRequest() {
		t.Fatalf("expected budget exhausted after recording usage at the limit")
	}
	_, err := a.Ask(context.Background(), "prompt")
	if err != apperr.ErrAIUnavailable {
		t.Fatalf("expected ErrAIUnavailable, got %v", err)
	}
}

func TestExitOpinionMapsVerdictToAction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(rawAdvisorResponse{Verdict: "ZAMITNUTO"})
	}))
	defer srv.Close()

	a := NewAdvisor(zap.NewNop(), "test", srv.URL, "key", 10.0, 0.01, 60)
	action, err := a.ExitOpinion(context.Background(), "should I exit?")
	if err != nil {
		t.Fatalf("ExitOpinion: %v", err)
	}
	if action != domain.AIActionExitNow {
		t.Fatalf("expected AIActionExitNow for rejected verdict, got %v", action)
	}
}
