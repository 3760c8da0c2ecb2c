package order

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/Devansh-ops/delta-exchange-copy-trade/internal/journal"
	"github.com/Devansh-ops/delta-exchange-copy-trade/pkg/delta"
)

// CapLedger is the slice of the replication ledger the worker needs: a final
// admission check right before submission and the post-success commit.
type CapLedger interface {
	Admit(symbol string, add int64) bool
	Commit(symbol string, add int64)
	Used(symbol string) int64
	Limit(symbol string) int64
}

// Submitter places one top-up order at the venue.
type Submitter interface {
	SubmitTopUp(ctx context.Context, o delta.Order) delta.Result
}

// Worker is the single execution goroutine. It drains the queue, re-checks
// the symbol cap, submits, and commits usage on success. Failed jobs are
// dropped after a short throttle; they are never retried.
type Worker struct {
	queue  *Queue
	ledger CapLedger
	client Submitter
	jr     *journal.Journal
	log    *zap.Logger
	stop   <-chan struct{}
	rng    *rand.Rand

	done chan struct{}
}

func NewWorker(queue *Queue, ledger CapLedger, client Submitter, jr *journal.Journal, log *zap.Logger, stop <-chan struct{}) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		queue:  queue,
		ledger: ledger,
		client: client,
		jr:     jr,
		log:    log,
		stop:   stop,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		done:   make(chan struct{}),
	}
}

// Done is closed when the worker goroutine has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Run consumes jobs until the stop signal fires or the nil sentinel arrives.
func (w *Worker) Run() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			w.log.Info("order worker stopping")
			return
		case job := <-w.queue.Chan():
			if job == nil {
				w.log.Info("order worker drained")
				return
			}
			w.process(job)
		}
	}
}

func (w *Worker) process(job *TopUpJob) {
	if job.Size <= 0 || (job.Side != "buy" && job.Side != "sell") {
		w.jr.Skip("invalid_job", job.Fields())
		return
	}
	w.jr.Action("dequeue_topup", job.Fields())

	// The cap is re-checked at submission time: events admitted while earlier
	// jobs were still in the queue may no longer fit.
	if !w.ledger.Admit(job.Symbol, job.Size) {
		ctx := job.Fields()
		ctx["cap_used"] = w.ledger.Used(job.Symbol)
		ctx["cap_limit"] = w.ledger.Limit(job.Symbol)
		w.jr.Skip("symbol_cap_exceeded_worker", ctx)
		return
	}

	res := w.client.SubmitTopUp(context.Background(), delta.Order{
		Symbol:    job.Symbol,
		ProductID: job.ProductID,
		Side:      job.Side,
		Size:      job.Size,
		PriceHint: job.Price,
	})

	ctx := job.Fields()
	ctx["status"] = res.Status
	ctx["dry_run"] = res.DryRun
	if res.OK() {
		w.ledger.Commit(job.Symbol, job.Size)
		ctx["cap_used"] = w.ledger.Used(job.Symbol)
		w.jr.Action("order_result", ctx)
		return
	}
	ctx["body"] = res.Body
	w.jr.Action("order_result", ctx)
	w.throttleAfterFailure()
}

// throttleAfterFailure pauses the worker after a failed submission so a venue
// rejecting every order does not get hammered. The pause is interruptible.
func (w *Worker) throttleAfterFailure() {
	wait := 5 * time.Duration(float64(time.Second)*(0.25+w.rng.Float64()*0.75))
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-w.stop:
	case <-timer.C:
	}
}
