package order

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Devansh-ops/delta-exchange-copy-trade/internal/journal"
	"github.com/Devansh-ops/delta-exchange-copy-trade/pkg/delta"
)

type fakeLedger struct {
	limit     int64
	used      map[string]int64
	committed []int64
}

func newFakeLedger(limit int64) *fakeLedger {
	return &fakeLedger{limit: limit, used: map[string]int64{}}
}

func (f *fakeLedger) Admit(symbol string, add int64) bool { return f.used[symbol]+add <= f.limit }
func (f *fakeLedger) Commit(symbol string, add int64) {
	f.used[symbol] += add
	f.committed = append(f.committed, add)
}
func (f *fakeLedger) Used(symbol string) int64  { return f.used[symbol] }
func (f *fakeLedger) Limit(symbol string) int64 { return f.limit }

type fakeSubmitter struct {
	results []delta.Result
	orders  []delta.Order
}

func (f *fakeSubmitter) SubmitTopUp(_ context.Context, o delta.Order) delta.Result {
	f.orders = append(f.orders, o)
	if len(f.results) == 0 {
		return delta.Result{Status: 200}
	}
	res := f.results[0]
	f.results = f.results[1:]
	return res
}

// closedStop returns an already-fired stop channel so failure throttles
// return immediately.
func closedStop() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func newTestWorker(ledger CapLedger, sub Submitter, stop <-chan struct{}) *Worker {
	jr := journal.New(zap.NewNop(), nil, false)
	return NewWorker(NewQueue(8), ledger, sub, jr, zap.NewNop(), stop)
}

func TestWorkerCommitsOnSuccess(t *testing.T) {
	ledger := newFakeLedger(1000)
	sub := &fakeSubmitter{}
	w := newTestWorker(ledger, sub, make(chan struct{}))

	w.process(&TopUpJob{AuditID: "t1", Symbol: "BTCUSD", Side: "buy", Size: 40})

	if len(sub.orders) != 1 {
		t.Fatalf("submissions=%d, expected 1", len(sub.orders))
	}
	if got := ledger.Used("BTCUSD"); got != 40 {
		t.Fatalf("Used=%d after success, expected 40", got)
	}
}

func TestWorkerSkipsInvalidJobs(t *testing.T) {
	tests := []struct {
		name string
		job  TopUpJob
	}{
		{name: "zero size", job: TopUpJob{Symbol: "BTCUSD", Side: "buy", Size: 0}},
		{name: "negative size", job: TopUpJob{Symbol: "BTCUSD", Side: "sell", Size: -1}},
		{name: "bad side", job: TopUpJob{Symbol: "BTCUSD", Side: "hold", Size: 10}},
		{name: "missing side", job: TopUpJob{Symbol: "BTCUSD", Size: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := newFakeLedger(1000)
			sub := &fakeSubmitter{}
			w := newTestWorker(ledger, sub, make(chan struct{}))

			job := tt.job
			w.process(&job)

			if len(sub.orders) != 0 {
				t.Fatal("invalid job was submitted")
			}
			if len(ledger.committed) != 0 {
				t.Fatal("invalid job committed cap usage")
			}
		})
	}
}

func TestWorkerReChecksCapAtSubmission(t *testing.T) {
	ledger := newFakeLedger(50)
	ledger.used["BTCUSD"] = 30
	sub := &fakeSubmitter{}
	w := newTestWorker(ledger, sub, make(chan struct{}))

	// Admitted at enqueue time, no longer fits now.
	w.process(&TopUpJob{AuditID: "t1", Symbol: "BTCUSD", Side: "buy", Size: 40})

	if len(sub.orders) != 0 {
		t.Fatal("over-cap job was submitted")
	}
	if got := ledger.Used("BTCUSD"); got != 30 {
		t.Fatalf("Used=%d, expected unchanged 30", got)
	}
}

func TestWorkerDoesNotCommitOnFailure(t *testing.T) {
	ledger := newFakeLedger(1000)
	sub := &fakeSubmitter{results: []delta.Result{{Status: 500}}}
	w := newTestWorker(ledger, sub, closedStop())

	w.process(&TopUpJob{AuditID: "t1", Symbol: "BTCUSD", Side: "sell", Size: 10})

	if len(sub.orders) != 1 {
		t.Fatalf("submissions=%d, expected 1", len(sub.orders))
	}
	if got := ledger.Used("BTCUSD"); got != 0 {
		t.Fatalf("Used=%d after failure, expected 0", got)
	}
}

func TestWorkerStopsOnSentinel(t *testing.T) {
	ledger := newFakeLedger(1000)
	sub := &fakeSubmitter{}
	w := newTestWorker(ledger, sub, make(chan struct{}))

	w.queue.TryEnqueue(&TopUpJob{AuditID: "t1", Symbol: "BTCUSD", Side: "buy", Size: 5})
	w.queue.InjectSentinel()

	go w.Run()
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit on sentinel")
	}
	if len(sub.orders) != 1 {
		t.Fatalf("submissions=%d, expected queued job processed before sentinel", len(sub.orders))
	}
}

func TestWorkerStopsOnSignal(t *testing.T) {
	ledger := newFakeLedger(1000)
	sub := &fakeSubmitter{}
	stop := make(chan struct{})
	w := newTestWorker(ledger, sub, stop)

	go w.Run()
	close(stop)
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit on stop signal")
	}
}
