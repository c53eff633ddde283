package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegistryCounts(t *testing.T) {
	r := NewRegistry()

	r.Transition("applied")
	r.Transition("applied")
	r.Transition("noop")
	r.CacheResult("hit")
	r.SetStalled(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.StatusTransitions.WithLabelValues("applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.StatusTransitions.WithLabelValues("noop")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.DetailCache.WithLabelValues("hit")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.StalledUploads))
}

func TestNilRegistryIsSafe(t *testing.T) {
	var r *Registry
	assert.NotPanics(t, func() {
		r.Transition("applied")
		r.AuditFailed()
		r.Signal("completed")
		r.Fallback("upload")
		r.CacheResult("miss")
		r.CatalogLoad("primary")
		r.SetStalled(1)
	})
}
