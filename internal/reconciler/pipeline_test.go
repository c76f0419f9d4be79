package reconciler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zgeoff/decree/internal/domain"
	"github.com/zgeoff/decree/internal/provider"
)

func TestDerivePipelineStatus_ChecksFailureWinsOverCombinedSuccess(t *testing.T) {
	combined := &provider.CombinedStatus{State: "success", TotalCount: 2}
	checks := []provider.CheckRun{
		{Status: "completed", Conclusion: "success", Name: "lint"},
		{Status: "completed", Conclusion: "failure", Name: "unit", DetailsURL: "https://ci/unit"},
	}
	got := DerivePipelineStatus(combined, checks)
	assert.Equal(t, domain.PipelineFailure, got.Status)
	assert.Equal(t, "unit", got.Reason)
	assert.Equal(t, "https://ci/unit", got.URL)
}

func TestDerivePipelineStatus_CombinedFailureWhenNoChecks(t *testing.T) {
	combined := &provider.CombinedStatus{State: "failure", TotalCount: 1}
	got := DerivePipelineStatus(combined, nil)
	assert.Equal(t, domain.PipelineFailure, got.Status)
}

func TestDerivePipelineStatus_IncompleteCheckIsPending(t *testing.T) {
	combined := &provider.CombinedStatus{State: "success", TotalCount: 1}
	checks := []provider.CheckRun{{Status: "in_progress", Conclusion: ""}}
	got := DerivePipelineStatus(combined, checks)
	assert.Equal(t, domain.PipelinePending, got.Status)
}

func TestDerivePipelineStatus_CombinedPendingWithCount(t *testing.T) {
	combined := &provider.CombinedStatus{State: "pending", TotalCount: 3}
	got := DerivePipelineStatus(combined, nil)
	assert.Equal(t, domain.PipelinePending, got.Status)
}

func TestDerivePipelineStatus_NoDataAtAllIsPending(t *testing.T) {
	got := DerivePipelineStatus(&provider.CombinedStatus{State: "pending", TotalCount: 0}, nil)
	assert.Equal(t, domain.PipelinePending, got.Status)
}

func TestDerivePipelineStatus_AllGreenIsSuccess(t *testing.T) {
	combined := &provider.CombinedStatus{State: "success", TotalCount: 2}
	checks := []provider.CheckRun{
		{Status: "completed", Conclusion: "success"},
		{Status: "completed", Conclusion: "neutral"},
	}
	got := DerivePipelineStatus(combined, checks)
	assert.Equal(t, domain.PipelineSuccess, got.Status)
}
