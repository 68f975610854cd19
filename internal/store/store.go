// Package store is the engine's durable persistence layer: a single
// SQLite file holding trades, positions and their legs, AI decisions,
// shadow trades, circuit-breaker events and exit adjustments. Writes
// are append-mostly; lifecycle state is mutated by id. Concurrent
// readers are always allowed; writes to the same entity id are
// serialized through keyedMutex.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/atlas-desktop/options-engine/internal/domain"
	"github.com/atlas-desktop/options-engine/internal/money"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store wraps a *sql.DB with the engine's domain-specific operations.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	locks  *keyedMutex
}

// New wraps an already-opened database handle.
func New(db *sql.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger.Named("store"), locks: newKeyedMutex()}
}

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func timePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

// --- Position creation (append) -------------------------------------------------

// CreatePosition persists a newly-opened Position and its legs in one
// transaction, keyed by position id.
func (s *Store) CreatePosition(ctx context.Context, p domain.Position) error {
	unlock := s.locks.lockFor(p.ID)
	defer unlock()

	return WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO positions (id, symbol, strategy, entry_ts, expiration, contracts,
				entry_credit, entry_debit, max_risk, status, vix_entry, regime_entry,
				trailing_stop, trailing_profit, highest_profit_seen, stop_multiplier,
				profit_target_pct, ml_confidence, ml_last_update, rolled_from_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.Symbol, string(p.Strategy), p.EntryTS.UTC().Format(time.RFC3339Nano),
			p.Expiration.UTC().Format(time.RFC3339Nano), p.Contracts,
			p.EntryCredit.Decimal().String(), p.EntryDebit.Decimal().String(), p.MaxRisk.String(),
			string(p.Status), p.VIXEntry.String(), string(p.RegimeEntry),
			p.Exit.TrailingStop.String(), p.Exit.TrailingProfit.String(), p.Exit.HighestProfitSeen.String(),
			p.Exit.StopMultiplier.String(), p.Exit.ProfitTargetPct.String(), p.Exit.MLConfidence.String(),
			p.Exit.MLLastUpdate.UTC().Format(time.RFC3339Nano), nullableString(p.RolledFromID))
		if err != nil {
			return fmt.Errorf("store: insert position: %w", err)
		}
		for _, leg := range p.Legs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO position_legs (position_id, contract_symbol, con_id, action, strike,
					option_type, expiration, quantity, entry_price)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				p.ID, leg.ContractSymbol, leg.ConID, string(leg.Action), leg.Strike.String(),
				string(leg.OptionType), leg.Expiration.UTC().Format(time.RFC3339Nano), leg.Quantity,
				leg.EntryPrice.String()); err != nil {
				return fmt.Errorf("store: insert leg: %w", err)
			}
		}
		return nil
	})
}

// --- Append operations -----------------------------------------------------------

func (s *Store) LogTrade(ctx context.Context, t domain.Trade) error {
	unlock := s.locks.lockFor(t.ID)
	defer unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (id, position_id, kind, symbol, status, requested_qty, filled_qty,
			fill_price, vix_at_entry, regime_at_entry, submitted_at, broker_order_id, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.PositionID, string(t.Kind), t.Symbol, string(t.Status), t.RequestedQty, t.FilledQty,
		t.FillPrice.String(), t.VIXAtEntry.String(), string(t.RegimeAtEntry),
		t.SubmittedAt.UTC().Format(time.RFC3339Nano), t.BrokerOrderID, t.Notes)
	if err != nil {
		return fmt.Errorf("store: log trade: %w", err)
	}
	return nil
}

func (s *Store) LogAIDecision(ctx context.Context, d domain.AIDecision) error {
	unlock := s.locks.lockFor(d.ID)
	defer unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_decisions (id, model_id, decision_type, recommendation, confidence, vix, regime, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.ModelID, d.DecisionType, d.Recommendation, d.Confidence.String(), d.VIX.String(),
		string(d.Regime), d.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store: log ai decision: %w", err)
	}
	return nil
}

func (s *Store) LogShadowTrade(ctx context.Context, st domain.ShadowTrade) error {
	unlock := s.locks.lockFor(st.ID)
	defer unlock()
	features, err := json.Marshal(st.Features)
	if err != nil {
		return fmt.Errorf("store: marshal shadow trade features: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO shadow_trades (id, symbol, strategy, rejected_at, rejected_by, reason, features,
			expiration, status, outcome_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.Symbol, string(st.Strategy), st.RejectedAt.UTC().Format(time.RFC3339Nano),
		st.RejectedBy, st.Reason, string(features), st.Expiration.UTC().Format(time.RFC3339Nano),
		string(st.Outcome), nullableTime(st.OutcomeAt))
	if err != nil {
		return fmt.Errorf("store: log shadow trade: %w", err)
	}
	return nil
}

func (s *Store) LogCircuitBreakerEvent(ctx context.Context, e domain.CircuitBreakerEvent) error {
	unlock := s.locks.lockFor(e.ID)
	defer unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO circuit_breaker_events (id, triggered_ts, reason, threshold_value, reset_ts, reset_by)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.TriggeredTS.UTC().Format(time.RFC3339Nano), string(e.Reason), e.ThresholdValue.String(),
		nullableTime(e.ResetTS), nullableString(e.ResetBy))
	if err != nil {
		return fmt.Errorf("store: log circuit breaker event: %w", err)
	}
	return nil
}

func (s *Store) LogExitAdjustment(ctx context.Context, a domain.ExitAdjustment) error {
	unlock := s.locks.lockFor(a.PositionID)
	defer unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exit_adjustments (id, position_id, at, old_stop, new_stop, old_profit, new_profit, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.PositionID, a.At.UTC().Format(time.RFC3339Nano), a.OldStop.String(), a.NewStop.String(),
		a.OldProfit.String(), a.NewProfit.String(), a.Source)
	if err != nil {
		return fmt.Errorf("store: log exit adjustment: %w", err)
	}
	return nil
}

func (s *Store) RecordPnL(ctx context.Context, positionID string, at time.Time, pnl decimal.Decimal) error {
	unlock := s.locks.lockFor(positionID)
	defer unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pnl_history (id, position_id, at, realized_pnl) VALUES (?, ?, ?, ?)`,
		positionID+"-"+at.UTC().Format(time.RFC3339Nano), positionID, at.UTC().Format(time.RFC3339Nano), pnl.String())
	if err != nil {
		return fmt.Errorf("store: record pnl: %w", err)
	}
	return nil
}

func (s *Store) LogMarketSnapshot(ctx context.Context, m domain.MarketSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_snapshots (id, ts, vix, vix3m, ratio, term_structure, regime, regime_mode)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.TS.UTC().Format(time.RFC3339Nano)+"-"+string(m.Regime), m.TS.UTC().Format(time.RFC3339Nano),
		m.VIX.String(), optDecStr(m.VIX3M), optDecStr(m.Ratio), string(m.TermStructure),
		string(m.Regime), string(m.RegimeMode))
	if err != nil {
		return fmt.Errorf("store: log market snapshot: %w", err)
	}
	return nil
}

func optDecStr(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// --- Update-by-id operations -------------------------------------------------

func (s *Store) CloseTrade(ctx context.Context, tradeID string, status domain.OrderState, filledQty int, fillPrice decimal.Decimal, closedAt time.Time) error {
	unlock := s.locks.lockFor(tradeID)
	defer unlock()
	_, err := s.db.ExecContext(ctx, `
		UPDATE trades SET status = ?, filled_qty = ?, fill_price = ?, closed_at = ? WHERE id = ?`,
		string(status), filledQty, fillPrice.String(), closedAt.UTC().Format(time.RFC3339Nano), tradeID)
	if err != nil {
		return fmt.Errorf("store: close trade: %w", err)
	}
	return nil
}

func (s *Store) MarkPositionClosed(ctx context.Context, positionID string, status domain.PositionStatus, exitTS time.Time, exitPrice decimal.Decimal, reason domain.ExitReason, realizedPnL decimal.Decimal) error {
	unlock := s.locks.lockFor(positionID)
	defer unlock()
	_, err := s.db.ExecContext(ctx, `
		UPDATE positions SET status = ?, exit_ts = ?, exit_price = ?, exit_reason = ?, realized_pnl = ? WHERE id = ?`,
		string(status), exitTS.UTC().Format(time.RFC3339Nano), exitPrice.String(), string(reason),
		realizedPnL.String(), positionID)
	if err != nil {
		return fmt.Errorf("store: mark position closed: %w", err)
	}
	return nil
}

// MarkPositionRolled marks positionID ROLLED and records its exit
// time and reason; the successor links back through its own
// rolled_from_id, written by CreatePosition. Needed by the Roll Manager (§4.13) in addition to the named
// update-by-id operations in spec.md §4.3.
func (s *Store) MarkPositionRolled(ctx context.Context, positionID string, rolledAt time.Time) error {
	unlock := s.locks.lockFor(positionID)
	defer unlock()
	_, err := s.db.ExecContext(ctx, `
		UPDATE positions SET status = ?, exit_ts = ?, exit_reason = ? WHERE id = ?`,
		string(domain.PositionRolled), rolledAt.UTC().Format(time.RFC3339Nano), "ROLLED", positionID)
	if err != nil {
		return fmt.Errorf("store: mark position rolled: %w", err)
	}
	return nil
}

func (s *Store) UpdatePositionTrailing(ctx context.Context, positionID string, stop, profit, highestProfit, stopMult, profitTargetPct, confidence decimal.Decimal, at time.Time) error {
	unlock := s.locks.lockFor(positionID)
	defer unlock()
	_, err := s.db.ExecContext(ctx, `
		UPDATE positions SET trailing_stop = ?, trailing_profit = ?, highest_profit_seen = ?,
			stop_multiplier = ?, profit_target_pct = ?, ml_confidence = ?, ml_last_update = ?
		WHERE id = ?`,
		stop.String(), profit.String(), highestProfit.String(), stopMult.String(), profitTargetPct.String(),
		confidence.String(), at.UTC().Format(time.RFC3339Nano), positionID)
	if err != nil {
		return fmt.Errorf("store: update position trailing: %w", err)
	}
	return nil
}

func (s *Store) ResetCircuitBreaker(ctx context.Context, eventID string, resetAt time.Time, resetBy string) error {
	unlock := s.locks.lockFor(eventID)
	defer unlock()
	_, err := s.db.ExecContext(ctx, `
		UPDATE circuit_breaker_events SET reset_ts = ?, reset_by = ? WHERE id = ?`,
		resetAt.UTC().Format(time.RFC3339Nano), resetBy, eventID)
	if err != nil {
		return fmt.Errorf("store: reset circuit breaker: %w", err)
	}
	return nil
}

func (s *Store) UpdateShadowOutcome(ctx context.Context, shadowID string, outcome domain.ShadowOutcome, at time.Time) error {
	unlock := s.locks.lockFor(shadowID)
	defer unlock()
	_, err := s.db.ExecContext(ctx, `
		UPDATE shadow_trades SET status = ?, outcome_at = ? WHERE id = ?`,
		string(outcome), at.UTC().Format(time.RFC3339Nano), shadowID)
	if err != nil {
		return fmt.Errorf("store: update shadow outcome: %w", err)
	}
	return nil
}

// --- Query operations --------------------------------------------------------

// OpenPositions returns all positions with status OPEN, with legs
// attached.
func (s *Store) OpenPositions(ctx context.Context) ([]domain.Position, error) {
	return s.queryPositions(ctx, "WHERE status = ?", string(domain.PositionOpen))
}

// GetPosition returns a single position by id, with legs attached.
func (s *Store) GetPosition(ctx context.Context, id string) (domain.Position, error) {
	positions, err := s.queryPositions(ctx, "WHERE id = ?", id)
	if err != nil {
		return domain.Position{}, err
	}
	if len(positions) == 0 {
		return domain.Position{}, fmt.Errorf("store: position %s not found", id)
	}
	return positions[0], nil
}

func (s *Store) queryPositions(ctx context.Context, where string, args ...any) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, strategy, entry_ts, expiration, contracts, entry_credit, entry_debit,
			max_risk, status, exit_ts, exit_price, exit_reason, realized_pnl, vix_entry, regime_entry,
			trailing_stop, trailing_profit, highest_profit_seen, stop_multiplier, profit_target_pct,
			ml_confidence, ml_last_update, rolled_from_id
		FROM positions `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query positions: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		var p domain.Position
		var entryTS, expiration, status, strategy, regimeEntry string
		var entryCredit, entryDebit, maxRisk, vixEntry, trailingStop, trailingProfit, highestProfit, stopMult, profitTargetPct, mlConfidence string
		var exitTS, exitPrice, exitReason, realizedPnL, mlLastUpdate, rolledFromID sql.NullString

		if err := rows.Scan(&p.ID, &p.Symbol, &strategy, &entryTS, &expiration, &p.Contracts,
			&entryCredit, &entryDebit, &maxRisk, &status, &exitTS, &exitPrice, &exitReason, &realizedPnL,
			&vixEntry, &regimeEntry, &trailingStop, &trailingProfit, &highestProfit, &stopMult,
			&profitTargetPct, &mlConfidence, &mlLastUpdate, &rolledFromID); err != nil {
			return nil, fmt.Errorf("store: scan position: %w", err)
		}

		p.Strategy = domain.StrategyKind(strategy)
		p.Status = domain.PositionStatus(status)
		p.RegimeEntry = domain.Regime(regimeEntry)
		p.EntryTS, _ = time.Parse(time.RFC3339Nano, entryTS)
		p.Expiration, _ = time.Parse(time.RFC3339Nano, expiration)
		p.EntryCredit = money.NewCredit(dec(entryCredit))
		p.EntryDebit = money.NewDebit(dec(entryDebit))
		p.MaxRisk = dec(maxRisk)
		p.VIXEntry = dec(vixEntry)
		p.Exit.TrailingStop = dec(trailingStop)
		p.Exit.TrailingProfit = dec(trailingProfit)
		p.Exit.HighestProfitSeen = dec(highestProfit)
		p.Exit.StopMultiplier = dec(stopMult)
		p.Exit.ProfitTargetPct = dec(profitTargetPct)
		p.Exit.MLConfidence = dec(mlConfidence)
		if t := timePtr(mlLastUpdate); t != nil {
			p.Exit.MLLastUpdate = *t
		}
		p.ExitTS = timePtr(exitTS)
		if exitPrice.Valid {
			v := dec(exitPrice.String)
			p.ExitPrice = &v
		}
		if exitReason.Valid {
			r := domain.ExitReason(exitReason.String)
			p.ExitReason = &r
		}
		if realizedPnL.Valid {
			v := dec(realizedPnL.String)
			p.RealizedPnL = &v
		}
		if rolledFromID.Valid {
			v := rolledFromID.String
			p.RolledFromID = &v
		}

		legs, err := s.legsFor(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		p.Legs = legs
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) legsFor(ctx context.Context, positionID string) ([]domain.Leg, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position_id, contract_symbol, con_id, action, strike, option_type, expiration, quantity, entry_price
		FROM position_legs WHERE position_id = ?`, positionID)
	if err != nil {
		return nil, fmt.Errorf("store: query legs: %w", err)
	}
	defer rows.Close()

	var legs []domain.Leg
	for rows.Next() {
		var l domain.Leg
		var action, optionType, expiration, strike, entryPrice string
		if err := rows.Scan(&l.PositionID, &l.ContractSymbol, &l.ConID, &action, &strike, &optionType,
			&expiration, &l.Quantity, &entryPrice); err != nil {
			return nil, fmt.Errorf("store: scan leg: %w", err)
		}
		l.Action = domain.LegAction(action)
		l.OptionType = domain.OptionType(optionType)
		l.Expiration, _ = time.Parse(time.RFC3339Nano, expiration)
		l.Strike = dec(strike)
		l.EntryPrice = dec(entryPrice)
		legs = append(legs, l)
	}
	return legs, rows.Err()
}

// TradeHistory returns trades ordered most-recent-first, limited.
func (s *Store) TradeHistory(ctx context.Context, limit int) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, position_id, kind, symbol, status, requested_qty, filled_qty, fill_price,
			vix_at_entry, regime_at_entry, submitted_at, closed_at, broker_order_id, notes
		FROM trades ORDER BY submitted_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: trade history: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// LosingTrades returns closed trades with negative fill deltas within
// the last `days` days, most recent first, limited.
func (s *Store) LosingTrades(ctx context.Context, days, limit int) ([]domain.Trade, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339Nano)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, position_id, kind, symbol, status, requested_qty, filled_qty, fill_price,
			vix_at_entry, regime_at_entry, submitted_at, closed_at, broker_order_id, notes
		FROM trades
		WHERE status = ? AND submitted_at >= ? AND CAST(fill_price AS REAL) < 0
		ORDER BY submitted_at DESC LIMIT ?`, string(domain.OrderFilled), cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("store: losing trades: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// RecentClosingTrades returns the most recent `limit` CLOSE-kind
// trades (regardless of win/loss), most recent first. The circuit
// breaker's consecutive-loss check needs exactly this set — the last
// N closes, win or lose — rather than LosingTrades' any-N-losses
// view, since "the last N closed trades are all losses" requires
// seeing the wins that would break the streak too.
func (s *Store) RecentClosingTrades(ctx context.Context, limit int) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, position_id, kind, symbol, status, requested_qty, filled_qty, fill_price,
			vix_at_entry, regime_at_entry, submitted_at, closed_at, broker_order_id, notes
		FROM trades
		WHERE kind = ? AND status = ?
		ORDER BY submitted_at DESC LIMIT ?`, string(domain.TradeClose), string(domain.OrderFilled), limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent closing trades: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

func scanTrades(rows *sql.Rows) ([]domain.Trade, error) {
	var out []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var kind, status, submittedAt, regimeAtEntry, fillPrice, vixAtEntry string
		var closedAt sql.NullString
		if err := rows.Scan(&t.ID, &t.PositionID, &kind, &t.Symbol, &status, &t.RequestedQty, &t.FilledQty,
			&fillPrice, &vixAtEntry, &regimeAtEntry, &submittedAt, &closedAt, &t.BrokerOrderID, &t.Notes); err != nil {
			return nil, fmt.Errorf("store: scan trade: %w", err)
		}
		t.Kind = domain.TradeKind(kind)
		t.Status = domain.OrderState(status)
		t.RegimeAtEntry = domain.Regime(regimeAtEntry)
		t.FillPrice = dec(fillPrice)
		t.VIXAtEntry = dec(vixAtEntry)
		t.SubmittedAt, _ = time.Parse(time.RFC3339Nano, submittedAt)
		t.ClosedAt = timePtr(closedAt)
		out = append(out, t)
	}
	return out, rows.Err()
}

// PendingShadowTrades returns shadow trades whose outcome has not yet
// been evaluated.
func (s *Store) PendingShadowTrades(ctx context.Context) ([]domain.ShadowTrade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, strategy, rejected_at, rejected_by, reason, features, expiration, status, outcome_at
		FROM shadow_trades WHERE status = ?`, string(domain.ShadowPending))
	if err != nil {
		return nil, fmt.Errorf("store: pending shadow trades: %w", err)
	}
	defer rows.Close()

	var out []domain.ShadowTrade
	for rows.Next() {
		var st domain.ShadowTrade
		var strategy, rejectedAt, features, expiration, status string
		var outcomeAt sql.NullString
		if err := rows.Scan(&st.ID, &st.Symbol, &strategy, &rejectedAt, &st.RejectedBy, &st.Reason,
			&features, &expiration, &status, &outcomeAt); err != nil {
			return nil, fmt.Errorf("store: scan shadow trade: %w", err)
		}
		st.Strategy = domain.StrategyKind(strategy)
		st.Outcome = domain.ShadowOutcome(status)
		st.RejectedAt, _ = time.Parse(time.RFC3339Nano, rejectedAt)
		st.Expiration, _ = time.Parse(time.RFC3339Nano, expiration)
		st.OutcomeAt = timePtr(outcomeAt)
		_ = json.Unmarshal([]byte(features), &st.Features)
		out = append(out, st)
	}
	return out, rows.Err()
}

// ActiveCircuitBreakerEvent returns the currently-active circuit
// breaker event, if any.
func (s *Store) ActiveCircuitBreakerEvent(ctx context.Context) (*domain.CircuitBreakerEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, triggered_ts, reason, threshold_value, reset_ts, reset_by
		FROM circuit_breaker_events WHERE reset_ts IS NULL ORDER BY triggered_ts DESC LIMIT 1`)

	var e domain.CircuitBreakerEvent
	var triggeredTS, reason, threshold string
	var resetTS, resetBy sql.NullString
	if err := row.Scan(&e.ID, &triggeredTS, &reason, &threshold, &resetTS, &resetBy); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: active circuit breaker event: %w", err)
	}
	e.Reason = domain.CircuitBreakerReason(reason)
	e.TriggeredTS, _ = time.Parse(time.RFC3339Nano, triggeredTS)
	e.ThresholdValue = dec(threshold)
	e.ResetTS = timePtr(resetTS)
	if resetBy.Valid {
		v := resetBy.String
		e.ResetBy = &v
	}
	return &e, nil
}
