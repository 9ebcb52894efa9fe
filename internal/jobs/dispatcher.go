package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/cloo-solutions/autoreply/internal/domain"
	"github.com/cloo-solutions/autoreply/internal/telemetry"
)

// Dispatcher runs named jobs detached from the request that triggered them.
// At most one run per name is in flight at a time.
type Dispatcher struct {
	mu      sync.Mutex
	running map[string]bool
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewDispatcher creates a Dispatcher whose jobs are cancelled by Shutdown.
func NewDispatcher() *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		running: make(map[string]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// TryLaunch starts fn in the background. It returns domain.ErrJobAlreadyRunning
// when a run with the same name has not finished yet. Errors from fn are
// logged and reported to Sentry.
func (d *Dispatcher) TryLaunch(name string, fn func(ctx context.Context) error) error {
	if err := d.claim(name); err != nil {
		return err
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.release(name)

		if err := fn(d.ctx); err != nil {
			d.report(name, err)
		}
	}()
	return nil
}

// Run executes fn synchronously under the same exclusivity as TryLaunch.
func (d *Dispatcher) Run(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if err := d.claim(name); err != nil {
		return err
	}
	d.wg.Add(1)
	defer d.wg.Done()
	defer d.release(name)

	return fn(ctx)
}

// Running reports whether a job with the given name is in flight.
func (d *Dispatcher) Running(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running[name]
}

// Shutdown waits for in-flight jobs. When ctx expires first, background jobs
// are cancelled and ctx's error is returned.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
}

func (d *Dispatcher) claim(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running[name] {
		return domain.NewDomainErrorWithCause(domain.ErrJobAlreadyRunning.Code, domain.ErrJobAlreadyRunning.Message,
			fmt.Errorf("job %q", name))
	}
	d.running[name] = true
	return nil
}

func (d *Dispatcher) release(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.running, name)
}

func (d *Dispatcher) report(name string, err error) {
	log.Printf("job %s failed: %v", name, err)
	telemetry.CaptureJobError(d.ctx, name, err)
}
