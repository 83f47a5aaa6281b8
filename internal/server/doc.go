// Package server implements the monitoring HTTP API: health, active call sessions,
// export and upload statistics, the sanitized configuration, and Prometheus metrics.
package server
