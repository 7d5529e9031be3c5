// Package retry runs an operation until it succeeds, a non-retryable error
// occurs, the attempt budget runs out, or the context is cancelled.
//
//	err := retry.Do(ctx, func(ctx context.Context, attempt int) error {
//		return page.Click(ctx, sel)
//	}, &retry.Config{
//		MaxAttempts: 3,
//		Backoff:     &retry.ConstantBackoff{Delay: time.Second},
//		RetryIf:     retry.Always,
//	})
//
// The attempt number lets an operation escalate on its last try. Typed
// errors from pkg/errors drive DefaultRetryIf, and ErrorTypeBackoff.For can
// be plugged into Config.BackoffFor so rate limits back off longer than
// network blips.
package retry
