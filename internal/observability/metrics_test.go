package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	metric := &dto.Metric{}
	require.NoError(t, c.Write(metric))
	counter := metric.GetCounter()
	require.NotNil(t, counter)
	return counter.GetValue()
}

func TestRecordFanout(t *testing.T) {
	counter := fanoutRecordsCounter.WithLabelValues("review")
	before := counterValue(t, counter)

	RecordFanout("review", 3)
	require.Equal(t, before+3, counterValue(t, counter))

	// Zero-row fan-outs happen on redelivery and are not counted as writes.
	RecordFanout("review", 0)
	require.Equal(t, before+3, counterValue(t, counter))

	gauge := &dto.Metric{}
	require.NoError(t, lastFanoutGauge.Write(gauge))
	require.Positive(t, gauge.GetGauge().GetValue())
}

func TestRecordSoftDeleted(t *testing.T) {
	counter := softDeletedCounter.WithLabelValues("follow")
	before := counterValue(t, counter)

	RecordSoftDeleted("follow", 2)
	require.Equal(t, before+2, counterValue(t, counter))
}

func TestRecordFanoutFailure(t *testing.T) {
	counter := fanoutFailureCounter.WithLabelValues("review.created")
	before := counterValue(t, counter)

	RecordFanoutFailure("review.created")
	require.Equal(t, before+1, counterValue(t, counter))
}
