package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersAll(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.PolledTotal.Add(3)
	m.EnqueuedTotal.WithLabelValues("submit").Inc()
	m.AbsorbedErrorsTotal.WithLabelValues("record_transaction").Inc()
	m.LastNonce.Set(7)

	require.Equal(t, float64(3), testutil.ToFloat64(m.PolledTotal))
	require.Equal(t, float64(1), testutil.ToFloat64(m.EnqueuedTotal.WithLabelValues("submit")))
	require.Equal(t, float64(7), testutil.ToFloat64(m.LastNonce))

	// registering twice on the same registry panics
	require.Panics(t, func() { New(reg) })
}

func TestRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ClaimedTotal.Inc()

	srv := httptest.NewServer(NewRouter(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "relayer_claimed_messages_total 1")

	resp, err = http.Post(srv.URL+"/healthz", "text/plain", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	resp.Body.Close()
}
