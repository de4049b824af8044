/*
Package monitoring provides Prometheus-based metrics collection.

# Overview

This package tracks the syscall dispatch path (frames, policy decisions,
audit writes), agent lifecycle transitions, fault recovery actions, and
cloud gateway attempts.

# Usage

	// Create metrics collector
	metrics := monitoring.NewMetrics()

	// Record dispatch outcomes
	metrics.RecordDispatch("fs_list", "ok", duration)
	metrics.RecordDeny("missing capability fs_basic")

	// Expose via the standard Prometheus endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

The Sink interface is the narrow emit_metric(name, delta) surface consumed
by components that should not depend on Prometheus directly.
*/
package monitoring
