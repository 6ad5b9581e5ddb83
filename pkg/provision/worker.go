package provision

import (
	"context"
	"log/slog"
)

// Provisioner applies credentials to the network stack.
type Provisioner interface {
	Apply(ctx context.Context, rec Record) error
}

// ProvisionerFunc adapts a function to Provisioner.
type ProvisionerFunc func(ctx context.Context, rec Record) error

// Apply calls fn.
func (fn ProvisionerFunc) Apply(ctx context.Context, rec Record) error { return fn(ctx, rec) }

// Worker drains a Queue into a Provisioner.
type Worker struct {
	queue  *Queue
	target Provisioner
	logger *slog.Logger
}

// NewWorker creates a worker.
func NewWorker(queue *Queue, target Provisioner, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{queue: queue, target: target, logger: logger}
}

// Run consumes records until ctx is done. Failures are logged and the record
// is dropped; the remote client resubmits if it wants to retry.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-w.queue.C():
			if err := w.target.Apply(ctx, rec); err != nil {
				w.logger.Warn("provisioning failed", "record", rec.String(), "error", err)
				continue
			}
			w.logger.Info("provisioning applied", "record", rec.String())
		}
	}
}
