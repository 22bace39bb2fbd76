package http

import (
	"crypto/tls"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var DefaultTransport http.RoundTripper = http.DefaultTransport

// InsecureTransport skips TLS verification, for self-hosted deployments using
// self-signed certificates.
var InsecureTransport http.RoundTripper

func init() {
	// Assign InsecureTransport package variable.
	clone := http.DefaultTransport.(*http.Transport).Clone()
	clone.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	InsecureTransport = clone
}

// instrumentTransport wraps rt, recording a request counter and a latency
// histogram with reg.
func instrumentTransport(rt http.RoundTripper, reg prometheus.Registerer) (http.RoundTripper, error) {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "missioncontrol",
		Subsystem: "client",
		Name:      "requests_total",
		Help:      "Number of API requests by status code and method.",
	}, []string{"code", "method"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "missioncontrol",
		Subsystem: "client",
		Name:      "request_duration_seconds",
		Help:      "Latency of API requests by method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
	for _, c := range []prometheus.Collector{requests, duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return promhttp.InstrumentRoundTripperCounter(requests,
		promhttp.InstrumentRoundTripperDuration(duration, rt),
	), nil
}
