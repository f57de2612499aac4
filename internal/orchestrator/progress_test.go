package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ignite/prospectai/internal/domain"
)

func newTestAggregator(target int) *progressAggregator {
	return newProgressAggregator(domain.CampaignProgress{
		ID:          "campaign-1",
		Status:      domain.CampaignRunning,
		TargetCount: target,
	}, nil, 0)
}

func TestProgressAggregatorApplyAccumulates(t *testing.T) {
	a := newTestAggregator(10)

	a.apply(progressDelta{processed: 1, succeeded: 1, prospectsFound: 2, emailsGenerated: 1, currentCompany: "Acme"})
	a.apply(progressDelta{processed: 1, errors: 1, currentStep: "enrich", currentCompany: "Globex"})

	snap := a.snapshot()
	require.Equal(t, 2, snap.ProcessedCount)
	require.Equal(t, 2, snap.ProspectsFound)
	require.Equal(t, 1, snap.EmailsGenerated)
	require.Equal(t, 1, snap.ErrorCount)
	require.Equal(t, "enrich", snap.CurrentStep)
	require.Equal(t, "Globex", snap.CurrentCompany)
	require.InDelta(t, 0.5, snap.SuccessRate, 0.0001)
}

func TestProgressAggregatorApplyKeepsLastNonEmptyStepAndCompany(t *testing.T) {
	a := newTestAggregator(5)
	a.apply(progressDelta{currentStep: "discover", currentCompany: "Acme"})
	a.apply(progressDelta{processed: 1})

	snap := a.snapshot()
	require.Equal(t, "discover", snap.CurrentStep)
	require.Equal(t, "Acme", snap.CurrentCompany)
}

func TestProgressAggregatorSuccessRateUnsetBeforeAnyProcessed(t *testing.T) {
	a := newTestAggregator(5)
	a.apply(progressDelta{prospectsFound: 3})

	snap := a.snapshot()
	require.Equal(t, 0, snap.ProcessedCount)
	require.Zero(t, snap.SuccessRate)
}

func TestProgressAggregatorSetStatusStampsEndTSOnlyOnTerminalStatus(t *testing.T) {
	a := newTestAggregator(5)

	a.setStatus(domain.CampaignPaused)
	require.True(t, a.snapshot().EndTS.IsZero())

	a.setStatus(domain.CampaignCompleted)
	require.False(t, a.snapshot().EndTS.IsZero())
}

func TestProgressAggregatorTerminalStatusClearsCurrentCompany(t *testing.T) {
	a := newTestAggregator(5)
	a.apply(progressDelta{currentStep: "enrich", currentCompany: "Acme"})

	a.setStatus(domain.CampaignPaused)
	require.Equal(t, "Acme", a.snapshot().CurrentCompany, "a pause leaves the in-flight company visible")

	a.setStatus(domain.CampaignFailed)
	require.Empty(t, a.snapshot().CurrentCompany, "a stopped campaign has no current company")
}
