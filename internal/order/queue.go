package order

// Queue is the bounded FIFO hand-off between event ingestion and order
// execution. Enqueue never blocks; a full queue is the backpressure valve and
// the job is dropped by the caller. A nil job is the shutdown sentinel.
type Queue struct {
	ch chan *TopUpJob
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 1000
	}
	return &Queue{ch: make(chan *TopUpJob, size)}
}

// TryEnqueue offers a job without blocking and reports whether it was
// accepted.
func (q *Queue) TryEnqueue(j *TopUpJob) bool {
	select {
	case q.ch <- j:
		return true
	default:
		return false
	}
}

// InjectSentinel offers the nil shutdown sentinel without blocking. A full
// queue is fine: the worker also watches the stop signal.
func (q *Queue) InjectSentinel() {
	select {
	case q.ch <- nil:
	default:
	}
}

// Chan exposes the receive side for the worker's blocking dequeue.
func (q *Queue) Chan() <-chan *TopUpJob {
	return q.ch
}

// Depth returns the number of queued jobs.
func (q *Queue) Depth() int {
	return len(q.ch)
}
