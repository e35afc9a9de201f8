// Package metrics provides the centralized Prometheus metrics registry for
// the pipeline. All metrics are defined in their respective packages
// (client, cache, ingest, transform, archive) to maintain modularity and
// avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the pipeline.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - catalog_requests_total{endpoint, status} (Counter): Total requests by endpoint and HTTP status
//   - catalog_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - catalog_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - catalog_retries_total{error_class} (Counter): Retry attempts by error class
//   - catalog_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - catalog_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Cache Metrics (pkg/cache):
//   - catalog_cache_hits_total (Counter): Page cache hits
//   - catalog_cache_misses_total (Counter): Page cache misses
//   - catalog_cache_errors_total{operation} (Counter): Cache operation errors
//
// Ingestion Metrics (pkg/ingest):
//   - ingest_pages_fetched_total{resource} (Counter): Pages fetched by resource
//   - ingest_records_written_total{resource} (Counter): Raw records written by resource
//   - ingest_runs_total{resource, status} (Counter): Runs by resource and outcome
//   - ingest_run_duration_seconds{resource} (Histogram): Run duration by resource
//
// Transform Metrics (pkg/transform):
//   - transform_runs_total{status} (Counter): Transform runs by outcome
//   - transform_rows_total{table} (Counter): Rows written per run by silver table
//   - transform_run_duration_seconds (Histogram): Transform run duration
//
// Archive Metrics (pkg/archive):
//   - archive_objects_total{status} (Counter): Archived objects by outcome
//   - archive_bytes_total (Counter): Compressed bytes uploaded
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(catalog_cache_hits_total[5m])) /
//   (sum(rate(catalog_cache_hits_total[5m])) + sum(rate(catalog_cache_misses_total[5m])))
//
//   # Request Error Rate
//   rate(catalog_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(catalog_request_duration_seconds_bucket[5m]))
//
//   # Failed Ingestion Runs
//   increase(ingest_runs_total{status="failed"}[1d])
