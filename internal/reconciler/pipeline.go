package reconciler

import (
	"github.com/zgeoff/decree/internal/domain"
	"github.com/zgeoff/decree/internal/provider"
)

var failingConclusions = map[string]bool{
	"failure":   true,
	"cancelled": true,
	"timed_out": true,
}

// DerivePipelineStatus combines a combined-status endpoint response with
// check-run results into the precedence-ordered aggregate of §4.F
// ("Pipeline derivation") and R2.
func DerivePipelineStatus(combined *provider.CombinedStatus, checks []provider.CheckRun) domain.Pipeline {
	for _, c := range checks {
		if failingConclusions[c.Conclusion] {
			return domain.Pipeline{Status: domain.PipelineFailure, URL: c.DetailsURL, Reason: c.Name}
		}
	}
	if combined != nil && combined.State == "failure" {
		return domain.Pipeline{Status: domain.PipelineFailure}
	}
	for _, c := range checks {
		if c.Status != "completed" {
			return domain.Pipeline{Status: domain.PipelinePending}
		}
	}
	if combined != nil && combined.State == "pending" && combined.TotalCount > 0 {
		return domain.Pipeline{Status: domain.PipelinePending}
	}
	combinedTotal := 0
	if combined != nil {
		combinedTotal = combined.TotalCount
	}
	if combinedTotal == 0 && len(checks) == 0 {
		return domain.Pipeline{Status: domain.PipelinePending}
	}
	return domain.Pipeline{Status: domain.PipelineSuccess}
}
