package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.FetchRequests.WithLabelValues("http", "ok").Inc()
	m.MeshCacheEntries.Set(3)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "oxy_imaging_fetch_requests_total")
	assert.Contains(t, names, "oxy_imaging_mesh_cache_entries")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FetchRequests.WithLabelValues("http", "ok")))
}

func TestUnregisteredSetsAreIndependent(t *testing.T) {
	a := Coalesce(nil)
	b := New(nil)
	a.VolumeLoads.WithLabelValues("ready").Inc()
	assert.Equal(t, float64(0), testutil.ToFloat64(b.VolumeLoads.WithLabelValues("ready")))
	assert.Same(t, a, Coalesce(a))
}
