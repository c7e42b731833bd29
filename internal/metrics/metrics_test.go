package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordCaptureOutcome(t *testing.T) {
	before := testutil.ToFloat64(CaptureOutcomesTotal.WithLabelValues("image", "proceed"))
	RecordCaptureOutcome("image", "proceed")
	RecordCaptureOutcome("image", "proceed")
	after := testutil.ToFloat64(CaptureOutcomesTotal.WithLabelValues("image", "proceed"))
	require.Equal(t, before+2, after)
}

func TestRecordAnalysis(t *testing.T) {
	before := testutil.ToFloat64(AnalysesTotal.WithLabelValues("document", "failed"))
	RecordAnalysis("document", "failed", 0.25)
	require.Equal(t, before+1, testutil.ToFloat64(AnalysesTotal.WithLabelValues("document", "failed")))
}

func TestRecordPaywallOutcome(t *testing.T) {
	before := testutil.ToFloat64(PaywallOutcomesTotal.WithLabelValues("purchased"))
	RecordPaywallOutcome("purchased")
	require.Equal(t, before+1, testutil.ToFloat64(PaywallOutcomesTotal.WithLabelValues("purchased")))
}
