package jobs

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/cloo-solutions/autoreply/internal/domain"
)

// JobProcessor defines the interface for processing jobs
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker runs a processor on a fixed interval through a Dispatcher, so a
// scheduled run never overlaps one triggered elsewhere.
type Worker struct {
	name         string
	processor    JobProcessor
	dispatcher   *Dispatcher
	pollInterval time.Duration
	stopChan     chan struct{}
	doneChan     chan struct{}
}

// NewWorker creates a new Worker instance
func NewWorker(name string, processor JobProcessor, dispatcher *Dispatcher, pollInterval time.Duration) *Worker {
	return &Worker{
		name:         name,
		processor:    processor,
		dispatcher:   dispatcher,
		pollInterval: pollInterval,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

// Start begins the worker's polling loop
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	defer close(w.doneChan)

	log.Printf("worker %s: started with poll interval %v", w.name, w.pollInterval)

	for {
		select {
		case <-ctx.Done():
			log.Printf("worker %s: stopped, context cancelled", w.name)
			return
		case <-w.stopChan:
			log.Printf("worker %s: stopped, stop signal received", w.name)
			return
		case <-ticker.C:
			err := w.dispatcher.Run(ctx, w.name, w.processor.ProcessJobs)
			switch {
			case errors.Is(err, domain.ErrJobAlreadyRunning):
				log.Printf("worker %s: previous run still in progress, skipping tick", w.name)
			case err != nil:
				log.Printf("worker %s: run failed: %v", w.name, err)
			}
		}
	}
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	close(w.stopChan)
	<-w.doneChan
	log.Printf("worker %s: shutdown complete", w.name)
}

// Launcher starts one detached run of a processor through a Dispatcher.
type Launcher struct {
	name       string
	processor  JobProcessor
	dispatcher *Dispatcher
}

func NewLauncher(name string, processor JobProcessor, dispatcher *Dispatcher) *Launcher {
	return &Launcher{name: name, processor: processor, dispatcher: dispatcher}
}

// LaunchInbox returns domain.ErrJobAlreadyRunning while a run is in flight.
func (l *Launcher) LaunchInbox() error {
	return l.dispatcher.TryLaunch(l.name, l.processor.ProcessJobs)
}
