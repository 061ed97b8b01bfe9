package smsverify

import (
	"context"
	"errors"
	"sync"

	"github.com/IMQS/log"
)

const (
	SmsWorkerName   = "SmsWorker"
	QueueWorkerName = "QueueWorker"
)

var ErrQueueFull = errors.New("sms send queue is full")

// Job is a unit of sending work handed to a Worker.
type Job func(ctx context.Context) error

// Worker decides when a send job runs. queue is the configured SmsSendQueue.
type Worker interface {
	Dispatch(ctx context.Context, queue string, job Job) error
}

// SmsWorker runs every job immediately on the caller's goroutine.
type SmsWorker struct {
}

func (w SmsWorker) Dispatch(ctx context.Context, queue string, job Job) error {
	return job(ctx)
}

// QueueWorker runs jobs for a named queue on a background goroutine.
// Jobs without a queue name run inline, the same as SmsWorker.
type QueueWorker struct {
	log  *log.Logger
	jobs chan queuedJob
	quit chan int
	done sync.WaitGroup
}

type queuedJob struct {
	ctx   context.Context
	queue string
	job   Job
}

func NewQueueWorker(size int, lg *log.Logger) *QueueWorker {
	return &QueueWorker{
		log:  lg,
		jobs: make(chan queuedJob, size),
	}
}

func (w *QueueWorker) Start() {
	w.quit = make(chan int)
	w.done.Add(1)
	go func() {
		defer w.done.Done()
		for {
			select {
			case j := <-w.jobs:
				w.run(j)
			case <-w.quit:
				w.drain()
				return
			}
		}
	}()
}

// Stop runs whatever is still queued and waits for the goroutine to exit.
func (w *QueueWorker) Stop() {
	if w.quit == nil {
		return
	}
	close(w.quit)
	w.done.Wait()
	w.quit = nil
}

func (w *QueueWorker) Dispatch(ctx context.Context, queue string, job Job) error {
	if queue == "" {
		return job(ctx)
	}
	// The job outlives the request that queued it
	j := queuedJob{ctx: context.WithoutCancel(ctx), queue: queue, job: job}
	select {
	case w.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

func (w *QueueWorker) drain() {
	for {
		select {
		case j := <-w.jobs:
			w.run(j)
		default:
			return
		}
	}
}

func (w *QueueWorker) run(j queuedJob) {
	if err := j.job(j.ctx); err != nil {
		w.log.Errorf("Queue %v: send failed: %v", j.queue, err)
	}
}
