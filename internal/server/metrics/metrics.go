// Package metrics defines the Prometheus metrics of the authentication core.
// All metrics register with the default registry on import.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "requestmanager"

// LoginsTotal counts authentication attempts.
// Label result: "success", "unauthorized", "throttled", "disabled", "error".
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of authentication attempts, by result.",
	},
	[]string{"result"},
)

// TokenChecksTotal counts session token validations.
// Label result: "valid" or "invalid".
var TokenChecksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_checks_total",
		Help:      "Total number of session token checks, by result.",
	},
	[]string{"result"},
)

// PermissionChecksTotal counts permission evaluations.
// Labels: permission name and result ("granted", "denied", "error").
var PermissionChecksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "permission_checks_total",
		Help:      "Total number of permission checks, by permission and result.",
	},
	[]string{"permission", "result"},
)

// BreakglassCreationsTotal counts breakglass creation attempts.
// Label result: "created", "already_set", "error".
var BreakglassCreationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "breakglass_creations_total",
		Help:      "Total number of breakglass account creation attempts, by result.",
	},
	[]string{"result"},
)

// HTTPRequestDuration measures HTTP handler latency.
var HTTPRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "route", "code"},
)

// DatabaseUp is 1 while the last health probe reached the database.
var DatabaseUp = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "database_up",
		Help:      "Whether the last database health probe succeeded.",
	},
)
