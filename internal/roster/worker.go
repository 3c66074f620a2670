// Package roster keeps program rosters consistent with the member tables.
package roster

import (
	"context"
	"log"
	"time"

	"nssportal/internal/metrics"
	"nssportal/internal/queue"
)

// Sweep triggers.
const (
	TriggerEvent    = "event"
	TriggerInterval = "interval"
)

// Sweeper removes dangling member ids from programs.
type Sweeper interface {
	SweepRosters(ctx context.Context) (int, error)
}

// Worker sweeps rosters when a member is deleted and on a fixed interval.
type Worker struct {
	sweeper  Sweeper
	queue    queue.Queue
	metrics  *metrics.Metrics
	interval time.Duration
}

// NewWorker creates a worker. A zero interval disables periodic sweeps.
func NewWorker(s Sweeper, q queue.Queue, m *metrics.Metrics, interval time.Duration) *Worker {
	return &Worker{sweeper: s, queue: q, metrics: m, interval: interval}
}

// Run consumes roster events until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	messages, err := w.queue.Consume(ctx)
	if err != nil {
		return err
	}

	var tick <-chan time.Time
	if w.interval > 0 {
		t := time.NewTicker(w.interval)
		defer t.Stop()
		tick = t.C
	}

	log.Println("roster worker started, waiting for messages...")
	for {
		select {
		case <-ctx.Done():
			log.Println("roster worker stopped")
			return nil
		case msg, ok := <-messages:
			if !ok {
				log.Println("roster worker stopped")
				return nil
			}
			if msg.Type != queue.StudentDeleted && msg.Type != queue.CoordinatorDeleted {
				continue
			}
			log.Printf("processing %s %s", msg.Type, msg.ID())
			w.sweep(ctx, TriggerEvent)
		case <-tick:
			w.sweep(ctx, TriggerInterval)
		}
	}
}

func (w *Worker) sweep(ctx context.Context, trigger string) {
	n, err := w.sweeper.SweepRosters(ctx)
	w.metrics.Sweep(trigger)
	if err != nil {
		log.Printf("roster sweep (%s) failed: %v", trigger, err)
		return
	}
	if n > 0 {
		log.Printf("roster sweep (%s) rewrote %d program(s)", trigger, n)
	}
}

// recordDepth publishes how many events are still queued.
func (w *Worker) recordDepth(ctx context.Context) {
	switch q := w.queue.(type) {
	case interface{ Len() int }:
		w.metrics.SetQueueDepth(int64(q.Len()))
	case interface {
		Len(context.Context) (int64, error)
	}:
		n, err := q.Len(ctx)
		if err != nil {
			log.Printf("roster queue length: %v", err)
			return
		}
		w.metrics.SetQueueDepth(n)
	}
}
