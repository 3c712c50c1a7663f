// Package retry provides retry, backoff and polling helpers.
//
// Agent calls are retried at most once, and only when the failure is a
// transport error; the OnRetry hook is where the caller reinstalls the page
// agent before the second attempt:
//
//	resp, err := retry.DoWithResult(func() (*protocol.InvoiceResult, error) {
//		return client.LocateAndOpenInvoice(ctx, amount)
//	}, &retry.Config{
//		MaxAttempts: 2,
//		RetryIf:     errors.IsTransport,
//		OnRetry:     func(int, error, time.Duration) { reinstall(ctx) },
//		Context:     ctx,
//		Logger:      log,
//	})
//
// Poll drives the bounded waits inside the page agent (table content, view
// readiness). It stops on the first true, the first error, or ctx expiry.
package retry
