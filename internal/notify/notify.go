// Package notify is the Notifier façade (SPEC_FULL.md §4.17): a typed
// event list delivered best-effort over outbound HTTP, never retried.
// Grounded on the teacher's internal/events/event_bus.go typed-event
// shape (BaseEvent + EventType enum), adapted from an in-process
// pub/sub bus to a single-subscriber HTTP façade matching
// SPEC_FULL.md §6's Notifier channel contract, and on
// internal/external/collaborators.go's http.Client-with-timeout idiom
// for the outbound POST.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// EventType enumerates every event the engine publishes.
type EventType string

const (
	EventTradeOpened         EventType = "TradeOpened"
	EventTradeClosed         EventType = "TradeClosed"
	EventVIXPanic            EventType = "VIXPanic"
	EventBackwardation       EventType = "Backwardation"
	EventPipelineError       EventType = "PipelineError"
	EventReconciliationDiff  EventType = "ReconciliationDiff"
	EventWatchdogRestart     EventType = "WatchdogRestart"
	EventDailySummary        EventType = "DailySummary"
	EventStartup             EventType = "Startup"
	EventShutdown            EventType = "Shutdown"
)

// Event is one notification instance: Type selects the template,
// Text is the already-rendered human-readable body.
type Event struct {
	Type EventType `json:"type"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// payload is the wire shape the Notifier channel contract requires
// (SPEC_FULL.md §6): {chat_id, text, parse_mode, disable_notification}.
type payload struct {
	ChatID             string `json:"chat_id"`
	Text               string `json:"text"`
	ParseMode          string `json:"parse_mode"`
	DisableNotification bool   `json:"disable_notification"`
}

// Notifier posts Events to a single outbound HTTP endpoint,
// best-effort: a failed POST is logged and dropped, never retried
// (SPEC_FULL.md §4.17).
type Notifier struct {
	logger     *zap.Logger
	httpClient *http.Client
	url        string
	chatID     string
}

func New(logger *zap.Logger, url, chatID string) *Notifier {
	return &Notifier{
		logger:     logger.Named("notify"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		url:        url,
		chatID:     chatID,
	}
}

// Publish sends one Event. disableNotification quiets client-side
// alert sound for low-urgency events (e.g. DailySummary).
func (n *Notifier) Publish(ctx context.Context, e Event, disableNotification bool) {
	if n.url == "" {
		n.logger.Debug("notifier url unset, dropping event", zap.String("type", string(e.Type)))
		return
	}

	body, err := json.Marshal(payload{
		ChatID:              n.chatID,
		Text:                e.Text,
		ParseMode:           "Markdown",
		DisableNotification: disableNotification,
	})
	if err != nil {
		n.logger.Error("failed to marshal notification", zap.Error(err), zap.String("type", string(e.Type)))
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(sendCtx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.logger.Error("failed to build notification request", zap.Error(err), zap.String("type", string(e.Type)))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.logger.Warn("notification delivery failed", zap.Error(err), zap.String("type", string(e.Type)))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.logger.Warn("notification endpoint returned non-2xx", zap.Int("status", resp.StatusCode), zap.String("type", string(e.Type)))
	}
}

// helper constructors for the most frequent events, matching the
// teacher's preference for typed constructors over ad-hoc Event
// literals at call sites.

func TradeOpened(symbol string, strategy string, at time.Time) Event {
	return Event{Type: EventTradeOpened, Text: fmt.Sprintf("Opened %s %s", strategy, symbol), At: at}
}

func TradeClosed(symbol string, reason string, realizedPnL string, at time.Time) Event {
	return Event{Type: EventTradeClosed, Text: fmt.Sprintf("Closed %s (%s), P/L %s", symbol, reason, realizedPnL), At: at}
}

func VIXPanic(vix string, at time.Time) Event {
	return Event{Type: EventVIXPanic, Text: fmt.Sprintf("VIX panic threshold crossed: %s", vix), At: at}
}

func Backwardation(termStructure string, at time.Time) Event {
	return Event{Type: EventBackwardation, Text: fmt.Sprintf("VIX term structure in backwardation: %s", termStructure), At: at}
}

func PipelineError(stage string, err error, at time.Time) Event {
	return Event{Type: EventPipelineError, Text: fmt.Sprintf("Pipeline error in %s: %v", stage, err), At: at}
}

func ReconciliationDiff(closedExternally, unknownInBroker int, at time.Time) Event {
	return Event{Type: EventReconciliationDiff, Text: fmt.Sprintf("Reconciliation: %d closed externally, %d unknown-in-broker", closedExternally, unknownInBroker), At: at}
}

func WatchdogRestart(reason string, at time.Time) Event {
	return Event{Type: EventWatchdogRestart, Text: fmt.Sprintf("Watchdog restarted the service: %s", reason), At: at}
}

func DailySummary(text string, at time.Time) Event {
	return Event{Type: EventDailySummary, Text: text, At: at}
}

func Startup(at time.Time) Event {
	return Event{Type: EventStartup, Text: "Engine started", At: at}
}

func Shutdown(at time.Time) Event {
	return Event{Type: EventShutdown, Text: "Engine shutting down", At: at}
}
