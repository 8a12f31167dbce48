// Package observability builds the process logger and the Prometheus
// collectors for the proxy.
package observability
