/*
Package monitoring provides Prometheus metrics collection.

# Overview

Tracks the HTTP surface plus the domain events worth alerting on:
application start/stop outcomes (and whether the health monitor or an
explicit request triggered a stop), invitation results, exposure batch
fates, catalog sizes, and outbound collaborator call latency.

Each collector owns a private registry, so constructing a second
instance in tests never trips duplicate registration.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "gateway", "flip")
	// ... perform call ...
	timer.Stop("success")

All record methods tolerate a nil *Metrics, so components can be wired
without a collector in unit tests.
*/
package monitoring
