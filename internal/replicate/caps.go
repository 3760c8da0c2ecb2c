package replicate

import (
	"strings"
	"sync"
)

// Ledger tracks contracts already replicated per symbol this session and
// enforces the per-symbol ceiling. Totals only grow; they are incremented
// after a confirmed submission and reset only at process restart, even if the
// venue later cancels or reduces the order.
//
// Admission reads come from the ingestion goroutine and commits from the
// execution worker, so the ledger takes a lock on every access.
type Ledger struct {
	mu         sync.Mutex
	used       map[string]int64
	defaultMax int64
	overrides  map[string]int64
}

// CapStatus is one symbol's usage snapshot for the status API.
type CapStatus struct {
	Symbol string `json:"symbol"`
	Used   int64  `json:"used"`
	Limit  int64  `json:"limit"`
}

// NewLedger builds a ledger with a default per-symbol cap and optional
// per-symbol overrides (upper-cased keys).
func NewLedger(defaultMax int64, overrides map[string]int64) *Ledger {
	return &Ledger{
		used:       make(map[string]int64),
		defaultMax: defaultMax,
		overrides:  overrides,
	}
}

// Admit reports whether add more contracts fit under the symbol's cap.
// An unknown (empty) symbol is unconstrained.
func (l *Ledger) Admit(symbol string, add int64) bool {
	if symbol == "" {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.used[symbol]+add <= l.limitLocked(symbol)
}

// Commit records add contracts against the symbol after a successful
// submission. No-op for an unknown symbol.
func (l *Ledger) Commit(symbol string, add int64) {
	if symbol == "" {
		return
	}
	l.mu.Lock()
	l.used[symbol] += add
	l.mu.Unlock()
}

// Used returns the contracts replicated for symbol so far this session.
func (l *Ledger) Used(symbol string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.used[symbol]
}

// Limit returns the effective cap for symbol.
func (l *Ledger) Limit(symbol string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limitLocked(symbol)
}

func (l *Ledger) limitLocked(symbol string) int64 {
	if limit, ok := l.overrides[strings.ToUpper(symbol)]; ok {
		return limit
	}
	return l.defaultMax
}

// Snapshot returns usage for every symbol touched this session.
func (l *Ledger) Snapshot() []CapStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]CapStatus, 0, len(l.used))
	for sym, used := range l.used {
		out = append(out, CapStatus{Symbol: sym, Used: used, Limit: l.limitLocked(sym)})
	}
	return out
}
