/*
Package tracing provides lightweight request tracing for the daemon.

Spans follow OpenTelemetry concepts with a minimal implementation:
trace context propagates via the X-Trace-ID and X-Span-ID headers, and
finished spans are emitted through the structured log with buffered,
asynchronous collection.

Usage:

	tracer := tracing.New("rappd", logger)
	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "operation")
	span.SetTag("key", "value")
	span.Finish()
	tracer.Submit(span)
*/
package tracing
