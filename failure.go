package msgrelay

import (
	"context"
	"errors"
)

// FailureAction defines how a failed insert should be handled.
type FailureAction int

const (
	// FailureDrop removes the message from the queue as a poison message.
	FailureDrop FailureAction = iota
	// FailureRetry keeps the message queued and abandons the current tick.
	FailureRetry
)

// FailureClassifier decides whether a failed insert drops the message or retries it later.
type FailureClassifier func(ctx context.Context, message string, err error) FailureAction

func defaultFailureClassifier(_ context.Context, _ string, err error) FailureAction {
	if errors.Is(err, ErrStoreUnavailable) {
		return FailureRetry
	}

	return FailureDrop
}
