package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCommandOutcome_IncrementsCounter(t *testing.T) {
	commandOutcomes.Reset()
	RecordCommandOutcome("transitionWorkItemStatus", "applied")
	RecordCommandOutcome("transitionWorkItemStatus", "applied")

	assert.Equal(t, float64(2), testutil.ToFloat64(commandOutcomes.WithLabelValues("transitionWorkItemStatus", "applied")))
}

func TestRecordReconcilerTick_ErrorIncrementsErrorCounter(t *testing.T) {
	reconcilerTickErrors.Reset()
	RecordReconcilerTick("workItems", 10*time.Millisecond, errors.New("boom"))
	RecordReconcilerTick("workItems", 10*time.Millisecond, nil)

	assert.Equal(t, float64(1), testutil.ToFloat64(reconcilerTickErrors.WithLabelValues("workItems")))
}

func TestRecordRetryOutcome_IncrementsByOutcome(t *testing.T) {
	retryAttempts.Reset()
	RecordRetryOutcome("succeeded")
	RecordRetryOutcome("exhausted")
	RecordRetryOutcome("succeeded")

	assert.Equal(t, float64(2), testutil.ToFloat64(retryAttempts.WithLabelValues("succeeded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(retryAttempts.WithLabelValues("exhausted")))
}

func TestHandler_ServesPrometheusExposition(t *testing.T) {
	commandOutcomes.Reset()
	RecordCommandOutcome("startAgent", "failed")

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	buf := make([]byte, 64*1024)
	n, _ := resp.Body.Read(buf)
	assert.True(t, strings.Contains(string(buf[:n]), "decree_executor_command_outcomes_total"))
}
