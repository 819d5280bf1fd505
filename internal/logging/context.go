package logging

import (
	"context"
	"time"
)

// DetachContextWithTimeout returns a context that survives cancellation of
// parent but expires after timeout. Shutdown work such as the final snapshot
// runs under it after the serving context is gone.
func DetachContextWithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), timeout)
}
