package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	reg := prometheus.NewRegistry()
	b := NewBuild(reg)

	b.PageDone(2*time.Millisecond, 3)
	b.PageDone(time.Millisecond, 0)
	b.PageFailed()
	b.Resolved("markup", OutcomeFound)
	b.Resolved("style", OutcomeEmpty)
	b.Resolved("style", OutcomeEmpty)

	assert.Equal(t, 2.0, testutil.ToFloat64(b.pages))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.pageFailures))
	assert.Equal(t, 3.0, testutil.ToFloat64(b.injected))
	assert.Equal(t, 2.0, testutil.ToFloat64(b.resolutions.WithLabelValues("style", OutcomeEmpty)))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestRuntime(t *testing.T) {
	r := NewRuntime(prometheus.NewRegistry())

	r.ScanRan()
	r.ScanCoalesced()
	r.ScanCoalesced()
	r.LoadStarted()
	r.Registered()
	r.Failed("invalid_module")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.scans))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.coalesced))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.loads))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.registrations))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.failures.WithLabelValues("invalid_module")))
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var b *Build
	var r *Runtime

	assert.NotPanics(t, func() {
		b.PageDone(time.Second, 1)
		b.PageFailed()
		b.Resolved("markup", OutcomeError)
		r.ScanRan()
		r.ScanCoalesced()
		r.LoadStarted()
		r.Registered()
		r.Failed("load")
	})
}

func TestUnregisteredCollectors(t *testing.T) {
	assert.NotPanics(t, func() {
		NewBuild(nil).PageDone(time.Millisecond, 1)
		NewRuntime(nil).ScanRan()
	})
}
