// Package journal emits the bot's structured decision records. Every skip and
// every action produces one record {ts, kind, reason_or_action, context},
// written to the logger and, when a store is attached, persisted for replay.
package journal

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// Record is one decision-log entry.
type Record struct {
	Time    time.Time      `json:"ts"`
	Kind    string         `json:"kind"` // "skip" or "action"
	Name    string         `json:"name"` // reason (skip) or action name
	Context map[string]any `json:"context,omitempty"`
}

// Journal routes decision records to the logger and optional store.
type Journal struct {
	log     *zap.Logger
	store   *Store
	verbose bool
}

// New builds a journal. store may be nil. When verbose is false, skip records
// are suppressed; actions are always emitted.
func New(log *zap.Logger, store *Store, verbose bool) *Journal {
	if log == nil {
		log = zap.NewNop()
	}
	return &Journal{log: log, store: store, verbose: verbose}
}

// Skip records a designed rejection with its reason.
func (j *Journal) Skip(reason string, ctx map[string]any) {
	if !j.verbose {
		return
	}
	j.emit("skip", reason, ctx)
}

// Action records a state-changing step.
func (j *Journal) Action(action string, ctx map[string]any) {
	j.emit("action", action, ctx)
}

func (j *Journal) emit(kind, name string, ctx map[string]any) {
	j.log.Info(name,
		zap.String("kind", kind),
		zap.Any("context", ctx),
	)
	if j.store != nil {
		rec := Record{Time: time.Now().UTC(), Kind: kind, Name: name, Context: ctx}
		if err := j.store.Insert(rec); err != nil {
			j.log.Warn("journal store write failed", zap.Error(err))
		}
	}
}

// marshalContext renders the context map as compact JSON for persistence.
func marshalContext(ctx map[string]any) string {
	if len(ctx) == 0 {
		return ""
	}
	b, err := json.Marshal(ctx)
	if err != nil {
		return ""
	}
	return string(b)
}
