// Package metrics defines the prometheus collectors for build runs and
// component activation. A nil *Build or *Runtime is valid and records nothing,
// so packages can take metrics as an optional dependency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hydrate"

// Resolution outcomes for fragment and style lookups.
const (
	OutcomeFound = "found"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
)

// Build holds the collectors updated while injecting pages.
type Build struct {
	pages        prometheus.Counter
	pageFailures prometheus.Counter
	injected     prometheus.Counter
	resolutions  *prometheus.CounterVec
	pageDuration prometheus.Histogram
}

// NewBuild creates build collectors registered on reg. A nil reg creates
// unregistered collectors.
func NewBuild(reg prometheus.Registerer) *Build {
	f := promauto.With(reg)
	return &Build{
		pages: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "build",
			Name:      "pages_total",
			Help:      "Pages processed by the shadow template injector.",
		}),
		pageFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "build",
			Name:      "page_failures_total",
			Help:      "Pages that could not be parsed or written.",
		}),
		injected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "build",
			Name:      "templates_injected_total",
			Help:      "Declarative shadow root templates injected into elements.",
		}),
		resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "build",
			Name:      "fragment_resolutions_total",
			Help:      "Backing file resolutions by kind and outcome.",
		}, []string{"kind", "outcome"}),
		pageDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "build",
			Name:      "page_duration_seconds",
			Help:      "Time spent injecting a single page.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}
}

// PageDone records one processed page.
func (b *Build) PageDone(d time.Duration, injected int) {
	if b == nil {
		return
	}
	b.pages.Inc()
	b.injected.Add(float64(injected))
	b.pageDuration.Observe(d.Seconds())
}

// PageFailed records a page that could not be processed.
func (b *Build) PageFailed() {
	if b == nil {
		return
	}
	b.pageFailures.Inc()
}

// Resolved records a backing file resolution. kind is "markup" or "style".
func (b *Build) Resolved(kind, outcome string) {
	if b == nil {
		return
	}
	b.resolutions.WithLabelValues(kind, outcome).Inc()
}

// Runtime holds the collectors updated by the lazy component activator.
type Runtime struct {
	scans         prometheus.Counter
	coalesced     prometheus.Counter
	loads         prometheus.Counter
	registrations prometheus.Counter
	failures      *prometheus.CounterVec
}

// NewRuntime creates activator collectors registered on reg. A nil reg
// creates unregistered collectors.
func NewRuntime(reg prometheus.Registerer) *Runtime {
	f := promauto.With(reg)
	return &Runtime{
		scans: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "activator",
			Name:      "scans_total",
			Help:      "Frame scheduled subtree scans that ran.",
		}),
		coalesced: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "activator",
			Name:      "scans_coalesced_total",
			Help:      "Scheduled scans replaced by a newer schedule for the same node.",
		}),
		loads: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "activator",
			Name:      "loads_total",
			Help:      "Component loaders invoked.",
		}),
		registrations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "activator",
			Name:      "registrations_total",
			Help:      "Components registered with the element registry.",
		}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "activator",
			Name:      "failures_total",
			Help:      "Component activations that failed, by reason.",
		}, []string{"reason"}),
	}
}

// ScanRan records one executed scan.
func (r *Runtime) ScanRan() {
	if r == nil {
		return
	}
	r.scans.Inc()
}

// ScanCoalesced records a scan cancelled in favour of a newer one.
func (r *Runtime) ScanCoalesced() {
	if r == nil {
		return
	}
	r.coalesced.Inc()
}

// LoadStarted records a loader invocation.
func (r *Runtime) LoadStarted() {
	if r == nil {
		return
	}
	r.loads.Inc()
}

// Registered records a successful registration.
func (r *Runtime) Registered() {
	if r == nil {
		return
	}
	r.registrations.Inc()
}

// Failed records a failed activation.
func (r *Runtime) Failed(reason string) {
	if r == nil {
		return
	}
	r.failures.WithLabelValues(reason).Inc()
}
