package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aretw0/hetcore/internal/coherency"
	"github.com/aretw0/hetcore/internal/dispatch"
	"github.com/aretw0/hetcore/internal/scheduler"
	"github.com/aretw0/hetcore/internal/xlate"
	"github.com/aretw0/hetcore/pkg/domain"
	"github.com/aretw0/hetcore/pkg/rpc"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ xlate.Observer     = (*Metrics)(nil)
	_ coherency.Observer = (*Metrics)(nil)
	_ rpc.Observer       = (*Metrics)(nil)
	_ dispatch.Observer  = (*Metrics)(nil)
	_ scheduler.Observer = (*Metrics)(nil)
)

func TestMetrics_Counters(t *testing.T) {
	m := New(false)

	m.TranslationMiss(domain.CoreDSP, domain.MPUCachedVirtual)
	m.TranslationHit(domain.CoreDSP, domain.MPUCachedVirtual)
	m.TranslationHit(domain.CoreDSP, domain.MPUCachedVirtual)
	m.MapFailure(domain.CoreEVE, domain.Camera1DTiled)
	m.Unwind(domain.Camera1DTiled)
	m.CacheOp(coherency.OpFlush, domain.MPUCachedVirtual, 4096)
	m.CacheOp(coherency.OpInvalidate, domain.MPUCachedVirtual, 1024)
	m.Call(domain.CoreDSP, domain.FnManagerExec, domain.StatusSuccess, 3*time.Millisecond, 12, 0)
	m.Dispatched(domain.CoreDSP, 5, errors.New("partial"), 0.01)
	m.StateChanged(domain.CoreDSP, dispatch.StateFailed)
	m.SectionProcessed(10, 5, 0.02)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.translations.WithLabelValues("dsp", "cached-virtual", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.translations.WithLabelValues("dsp", "cached-virtual", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mapFailures.WithLabelValues("eve", "camera-1d-tiled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.unwinds.WithLabelValues("camera-1d-tiled")))
	assert.Equal(t, 4096.0, testutil.ToFloat64(m.cacheBytes.WithLabelValues("flush")))
	assert.Equal(t, 1024.0, testutil.ToFloat64(m.cacheBytes.WithLabelValues("invalidate")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.rpcBytes.WithLabelValues("dsp", "sent")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.dispatched.WithLabelValues("dsp", "true")))
	assert.Equal(t, float64(dispatch.StateFailed), testutil.ToFloat64(m.coreState.WithLabelValues("dsp")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.sectionNodes.WithLabelValues("submitted")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New(false)
	m.Call(domain.CoreSIMCOP, domain.FnManagerInit, domain.StatusSuccess, time.Millisecond, 12, 4)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `hetcore_rpc_calls_total{core="simcop",fn="KernelGraphManagerInit",status="success"} 1`)
	assert.Contains(t, string(body), "hetcore_rpc_duration_seconds_bucket")
}
