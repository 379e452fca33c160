// Package metrics holds the process-wide ExecutionMetrics counters and
// exports them to Prometheus.
package metrics
