package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHandlerExposesCounters(t *testing.T) {
	before := testutil.ToFloat64(Decisions.WithLabelValues("reprice"))
	Decisions.WithLabelValues("reprice").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(Decisions.WithLabelValues("reprice")))

	s := NewServer("127.0.0.1:0", zap.NewNop().Sugar())
	ts := httptest.NewServer(s.srv.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "otrace_retry_decisions_total")
}
