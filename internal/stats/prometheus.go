/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package stats

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// PrometheusExporter exposes live counters and gauges for a running Sender
// or Reflector on a "/metrics" endpoint. The twamp commands that serve it
// skip the end-of-run text dump.
type PrometheusExporter struct {
	registry *prometheus.Registry

	probesSent     prometheus.Counter
	probesReceived prometheus.Counter
	repliesDropped prometheus.Counter

	lastRTT    prometheus.Gauge
	lastJitter prometheus.Gauge
}

// NewPrometheusExporter creates a registry and registers the fixed set of
// TWAMP counters/gauges under it.
func NewPrometheusExporter(component string) *PrometheusExporter {
	e := &PrometheusExporter{
		registry: prometheus.NewRegistry(),
		probesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "twamp", Subsystem: component, Name: "probes_sent_total",
			Help: "Total number of test probes sent.",
		}),
		probesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "twamp", Subsystem: component, Name: "probes_received_total",
			Help: "Total number of test probes/replies received.",
		}),
		repliesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "twamp", Subsystem: component, Name: "packets_dropped_total",
			Help: "Total number of malformed or short packets dropped.",
		}),
		lastRTT: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "twamp", Subsystem: component, Name: "last_roundtrip_ms",
			Help: "Round-trip delay of the most recently processed reply, in milliseconds.",
		}),
		lastJitter: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "twamp", Subsystem: component, Name: "last_jitter_ms",
			Help: "Round-trip jitter estimate after the most recently processed reply, in milliseconds.",
		}),
	}
	e.registry.MustRegister(e.probesSent, e.probesReceived, e.repliesDropped, e.lastRTT, e.lastJitter)
	return e
}

// IncSent increments the probes-sent counter.
func (e *PrometheusExporter) IncSent() { e.probesSent.Inc() }

// IncReceived increments the probes-received counter.
func (e *PrometheusExporter) IncReceived() { e.probesReceived.Inc() }

// IncDropped increments the dropped-packet counter.
func (e *PrometheusExporter) IncDropped() { e.repliesDropped.Inc() }

// Observe updates the last-sample gauges from a fresh Snapshot.
func (e *PrometheusExporter) Observe(s Snapshot) {
	e.lastRTT.Set(s.LastRT)
	e.lastJitter.Set(s.JitterRT)
}

// Serve blocks, serving /metrics on addr. Intended to be run in its own
// goroutine by the owning command, mirroring cmd/ptp4u's monitoring-port
// pattern.
func (e *PrometheusExporter) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))
	log.Infof("stats: serving Prometheus metrics on %s", addr)
	return http.ListenAndServe(addr, mux) //nolint:gosec // operator-controlled bind address, not public-facing by default
}
