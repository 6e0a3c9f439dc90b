package task

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// CancelNotifier is a best-effort in-process signal from the orchestrator
// to the executor that a task was cancelled. Correctness never depends on
// it; the conditional store update is what makes cancellation stick. The
// notifier only lets an executor abort an in-flight provider call early
// instead of discovering the cancellation after the call returns.
type CancelNotifier struct {
	mu       sync.RWMutex
	handlers []func(uuid.UUID)
	logger   *slog.Logger
}

// NewCancelNotifier creates a notifier.
func NewCancelNotifier(logger *slog.Logger) *CancelNotifier {
	return &CancelNotifier{logger: logger}
}

// Subscribe registers a handler invoked on every cancellation signal.
func (n *CancelNotifier) Subscribe(handler func(uuid.UUID)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers = append(n.handlers, handler)
	n.logger.Debug("registered cancel handler", "handler_count", len(n.handlers))
}

// Notify fans the cancellation signal out to all handlers. Handlers must
// not block.
func (n *CancelNotifier) Notify(id uuid.UUID) {
	n.mu.RLock()
	handlers := make([]func(uuid.UUID), len(n.handlers))
	copy(handlers, n.handlers)
	n.mu.RUnlock()

	n.logger.Debug("signalling cancellation", "task_id", id, "handler_count", len(handlers))
	for _, h := range handlers {
		h(id)
	}
}
