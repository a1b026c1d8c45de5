package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	req := require.New(t)
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.SessionAccepted()
	metrics.SessionAccepted()
	metrics.SessionClosed()
	metrics.SessionRejected("validation")
	metrics.Indexed(true)
	metrics.Indexed(false)
	metrics.Indexed(false)
	metrics.IndexDrop()

	req.Equal(2.0, testutil.ToFloat64(metrics.SessionsAccepted))
	req.Equal(1.0, testutil.ToFloat64(metrics.LiveConnections))
	req.Equal(1.0, testutil.ToFloat64(metrics.SessionsRejected.WithLabelValues("validation")))
	req.Equal(1.0, testutil.ToFloat64(metrics.IndexSucceeded))
	req.Equal(2.0, testutil.ToFloat64(metrics.IndexFailed))
	req.Equal(1.0, testutil.ToFloat64(metrics.IndexDropped))
}

func TestMetrics_Nil_Is_Noop(t *testing.T) {
	var metrics *Metrics

	require.NotPanics(t, func() {
		metrics.SessionAccepted()
		metrics.SessionRejected("not_found")
		metrics.MessageRelayed(0.1)
		metrics.Indexed(true)
		metrics.Process(1, 2, 3)
	})
}
