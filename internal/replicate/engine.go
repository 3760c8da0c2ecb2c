// Package replicate holds the decision core: given a normalized account
// event, decide whether a top-up order is owed and how large it is.
package replicate

import (
	"math"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Devansh-ops/delta-exchange-copy-trade/internal/events"
	"github.com/Devansh-ops/delta-exchange-copy-trade/internal/journal"
	"github.com/Devansh-ops/delta-exchange-copy-trade/internal/order"
)

// Engine evaluates account events and enqueues top-up jobs. All mutable state
// except the cap ledger (fill/trade dedup, cumulative-fill tracking) is owned
// by the single ingestion goroutine, so none of it is locked.
type Engine struct {
	multiplier    float64
	maxPerTrade   int64
	allowSymbols  map[string]bool
	selfTagPrefix string

	fillSeen  *Dedup
	tradeSeen *Dedup
	// cumFilled tracks the last cumulative filled size per order id so an
	// order update only produces the newly filled delta.
	cumFilled map[string]int64

	ledger *Ledger
	queue  *order.Queue
	jr     *journal.Journal
	log    *zap.Logger
}

// EngineParams collects the engine's collaborators.
type EngineParams struct {
	Multiplier    float64
	MaxPerTrade   int64
	AllowSymbols  map[string]bool
	SelfTagPrefix string
	FillSeen      *Dedup
	TradeSeen     *Dedup
	Ledger        *Ledger
	Queue         *order.Queue
	Journal       *journal.Journal
	Log           *zap.Logger
}

func NewEngine(p EngineParams) *Engine {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		multiplier:    p.Multiplier,
		maxPerTrade:   p.MaxPerTrade,
		allowSymbols:  p.AllowSymbols,
		selfTagPrefix: p.SelfTagPrefix,
		fillSeen:      p.FillSeen,
		tradeSeen:     p.TradeSeen,
		cumFilled:     make(map[string]int64),
		ledger:        p.Ledger,
		queue:         p.Queue,
		jr:            p.Journal,
		log:           log,
	}
}

// Handle evaluates one account event.
func (e *Engine) Handle(ev events.AccountEvent) {
	switch ev.Kind {
	case events.KindTradeFill:
		e.handleTradeFill(ev)
	case events.KindOrderUpdate:
		e.handleOrderUpdate(ev)
	}
}

// trackedOrders returns the number of orders with open cumulative tracking.
func (e *Engine) trackedOrders() int {
	return len(e.cumFilled)
}

func (e *Engine) handleTradeFill(ev events.AccountEvent) {
	ctx := map[string]any{
		"symbol":   ev.Symbol,
		"fill_id":  ev.FillID,
		"trade_id": ev.TradeID,
	}
	if e.fillSeen.Seen(ev.FillID) {
		e.jr.Skip("dup_fill_id", ctx)
		return
	}
	if e.tradeSeen.Seen(ev.TradeID) {
		e.jr.Skip("dup_trade_id", ctx)
		return
	}
	if e.isOwn(ev) {
		e.jr.Skip("own_fill", ctx)
		return
	}
	if !e.allowed(ev.Symbol) {
		e.jr.Skip("symbol_not_allowed", ctx)
		return
	}
	if !ev.SizeOK || ev.Size <= 0 {
		e.jr.Skip("missing_or_invalid_qty", ctx)
		return
	}
	ctx["fill_size"] = ev.Size

	auditID := ev.TradeID
	if auditID == "" {
		auditID = "ut_" + uuid.NewString()[:8]
	}
	e.admitAndEnqueue(ev, ev.Size, auditID, ctx)
}

func (e *Engine) handleOrderUpdate(ev events.AccountEvent) {
	ctx := map[string]any{
		"symbol":   ev.Symbol,
		"order_id": ev.OrderID,
		"state":    ev.State,
	}
	if ev.FillID != "" && e.fillSeen.Seen(ev.FillID) {
		ctx["fill_id"] = ev.FillID
		e.jr.Skip("dup_fill_id", ctx)
		return
	}
	if e.isOwn(ev) {
		e.jr.Skip("own_order_update", ctx)
		return
	}
	if !e.allowed(ev.Symbol) {
		e.jr.Skip("symbol_not_allowed", ctx)
		return
	}
	if ev.OrderID == "" {
		e.jr.Skip("missing_order_id", ctx)
		return
	}
	if !ev.CumOK || ev.CumFilled < 0 {
		e.jr.Skip("missing_or_invalid_cum", ctx)
		return
	}

	prev := e.cumFilled[ev.OrderID]
	delta := ev.CumFilled - prev
	if delta <= 0 {
		// A cumulative below the stored value still replaces it, so fills
		// after a venue-side reduction replicate from the new baseline.
		e.cumFilled[ev.OrderID] = ev.CumFilled
		if ev.Terminal() {
			delete(e.cumFilled, ev.OrderID)
		}
		ctx["cum_filled"] = ev.CumFilled
		e.jr.Skip("no_new_fill_delta", ctx)
		return
	}
	e.cumFilled[ev.OrderID] = ev.CumFilled
	// Tracking is released only after the delta above has been taken, so a
	// terminal update that carries the last fill still replicates it.
	if ev.Terminal() {
		delete(e.cumFilled, ev.OrderID)
	}
	ctx["fill_delta"] = delta

	e.admitAndEnqueue(ev, delta, "ord_"+ev.OrderID, ctx)
}

// admitAndEnqueue sizes the top-up, checks the cap and hands the job to the
// execution queue.
func (e *Engine) admitAndEnqueue(ev events.AccountEvent, qty int64, auditID string, ctx map[string]any) {
	size := TopUpSize(e.multiplier, qty, e.maxPerTrade)
	if size <= 0 {
		e.jr.Skip("zero_topup", ctx)
		return
	}
	ctx["topup_size"] = size

	if !e.ledger.Admit(ev.Symbol, size) {
		ctx["cap_used"] = e.ledger.Used(ev.Symbol)
		ctx["cap_limit"] = e.ledger.Limit(ev.Symbol)
		e.jr.Skip("symbol_cap_exceeded", ctx)
		return
	}

	job := &order.TopUpJob{
		AuditID:   auditID,
		Symbol:    ev.Symbol,
		ProductID: ev.ProductID,
		Side:      string(ev.Side),
		Size:      size,
		Price:     ev.Price,
	}
	if !e.queue.TryEnqueue(job) {
		e.log.Error("order queue full, dropping top-up", zap.String("audit_id", auditID), zap.String("symbol", ev.Symbol), zap.Int64("size", size))
		e.jr.Skip("queue_full", job.Fields())
		return
	}
	e.jr.Action("enqueue_topup", job.Fields())
}

// isOwn reports whether the event belongs to an order this bot placed,
// recognized by the self tag in client_order_id or the text field.
func (e *Engine) isOwn(ev events.AccountEvent) bool {
	if e.selfTagPrefix == "" {
		return false
	}
	return strings.HasPrefix(ev.ClientTag, e.selfTagPrefix) ||
		strings.HasPrefix(ev.Text, e.selfTagPrefix)
}

// allowed applies the symbol allow-list; "ALL" is the wildcard.
func (e *Engine) allowed(symbol string) bool {
	if e.allowSymbols["ALL"] {
		return true
	}
	return e.allowSymbols[strings.ToUpper(symbol)]
}

// TopUpSize converts an observed fill quantity into the extra contracts owed
// under the multiplier: round((multiplier-1) * qty), clamped to
// [0, maxPerTrade]. A multiplier at or below 1 replicates nothing.
func TopUpSize(multiplier float64, qty, maxPerTrade int64) int64 {
	if qty <= 0 {
		return 0
	}
	extra := int64(math.Round((multiplier - 1) * float64(qty)))
	if extra < 0 {
		return 0
	}
	if maxPerTrade > 0 && extra > maxPerTrade {
		return maxPerTrade
	}
	return extra
}
