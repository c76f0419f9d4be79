package reconciler

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zgeoff/decree/config"
	"github.com/zgeoff/decree/internal/domain"
	"github.com/zgeoff/decree/internal/engine/event"
	"github.com/zgeoff/decree/internal/engine/state"
	"github.com/zgeoff/decree/internal/provider"
	"github.com/zgeoff/decree/internal/providertest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPollOnce_EmitsWorkItemChangedForNewRecord(t *testing.T) {
	store := state.New()
	workItems := providertest.NewWorkItems()
	workItems.Items["wi-1"] = provider.WorkItemRecord{ID: "wi-1", Title: "Add widget", Status: "ready", Priority: "p2"}
	revisions := providertest.NewRevisions()
	specs := providertest.NewSpecs()

	var got []event.Event
	r := New(config.DefaultConfig().Reconciler, store, workItems, revisions, specs, func(ev event.Event) { got = append(got, ev) }, testLogger())

	require.NoError(t, r.PollOnce(context.Background()))

	var found bool
	for _, ev := range got {
		if wic, ok := ev.(event.WorkItemChanged); ok && wic.ID == "wi-1" {
			found = true
			assert.Equal(t, "Add widget", wic.Title)
		}
	}
	assert.True(t, found, "expected a WorkItemChanged event for wi-1")
}

func TestPollOnce_NoChangeEmitsNothingOnSecondPoll(t *testing.T) {
	store := state.New()
	workItems := providertest.NewWorkItems()
	workItems.Items["wi-1"] = provider.WorkItemRecord{ID: "wi-1", Title: "Add widget", Status: "ready", Priority: "p2"}
	revisions := providertest.NewRevisions()
	specs := providertest.NewSpecs()

	// Pre-populate the store with the exact state the first poll would
	// produce, so the second poll's diff sees no change.
	store.SetState(store.GetState().WithWorkItem("wi-1", &domain.WorkItem{
		ID: "wi-1", Title: "Add widget", Status: domain.StatusReady, Priority: "p2",
	}))

	var events []event.Event
	r := New(config.DefaultConfig().Reconciler, store, workItems, revisions, specs, func(ev event.Event) { events = append(events, ev) }, testLogger())

	require.NoError(t, r.PollOnce(context.Background()))
	for _, ev := range events {
		if wic, ok := ev.(event.WorkItemChanged); ok {
			t.Fatalf("expected no WorkItemChanged on unchanged poll, got %+v", wic)
		}
	}
}

func TestPollOnce_RemovedWorkItemEmitsEmptyNewStatus(t *testing.T) {
	store := state.New()
	workItems := providertest.NewWorkItems()
	revisions := providertest.NewRevisions()
	specs := providertest.NewSpecs()

	store.SetState(store.GetState().WithWorkItem("wi-9", &domain.WorkItem{ID: "wi-9", Status: domain.StatusReady}))

	var got []event.Event
	r := New(config.DefaultConfig().Reconciler, store, workItems, revisions, specs, func(ev event.Event) { got = append(got, ev) }, testLogger())
	require.NoError(t, r.PollOnce(context.Background()))

	var found bool
	for _, ev := range got {
		if wic, ok := ev.(event.WorkItemChanged); ok && wic.ID == "wi-9" {
			found = true
			assert.Equal(t, domain.WorkItemStatus(""), wic.NewStatus)
			assert.Equal(t, domain.StatusReady, wic.OldStatus)
		}
	}
	assert.True(t, found, "expected a removal WorkItemChanged for wi-9")
}

func TestPollOnce_RevisionClosingKeywordResolvesWorkItem(t *testing.T) {
	store := state.New()
	workItems := providertest.NewWorkItems()
	revisions := providertest.NewRevisions()
	revisions.Items["rev-1"] = provider.RevisionRecord{ID: "rev-1", HeadSHA: "sha-1", Body: "Fixes #42"}
	specs := providertest.NewSpecs()

	var got []event.Event
	r := New(config.DefaultConfig().Reconciler, store, workItems, revisions, specs, func(ev event.Event) { got = append(got, ev) }, testLogger())
	require.NoError(t, r.PollOnce(context.Background()))

	var found bool
	for _, ev := range got {
		if rc, ok := ev.(event.RevisionChanged); ok && rc.ID == "rev-1" {
			found = true
			assert.Equal(t, "42", rc.WorkItemID)
		}
	}
	assert.True(t, found, "expected a RevisionChanged for rev-1 with resolved work item id")
}

func TestPollOnce_ReviewIDChangeEmitsRevisionChanged(t *testing.T) {
	store := state.New()
	workItems := providertest.NewWorkItems()
	revisions := providertest.NewRevisions()
	revisions.Items["rev-1"] = provider.RevisionRecord{ID: "rev-1", HeadSHA: "sha-1", ReviewID: "review-1"}
	specs := providertest.NewSpecs()

	store.SetState(store.GetState().WithRevision("rev-1", &domain.Revision{
		ID: "rev-1", HeadSHA: "sha-1", ReviewID: "review-0",
		Pipeline: &domain.Pipeline{Status: domain.PipelinePending},
	}))

	var got []event.Event
	r := New(config.DefaultConfig().Reconciler, store, workItems, revisions, specs, func(ev event.Event) { got = append(got, ev) }, testLogger())
	require.NoError(t, r.PollOnce(context.Background()))

	var found bool
	for _, ev := range got {
		if rc, ok := ev.(event.RevisionChanged); ok && rc.ID == "rev-1" {
			found = true
			assert.Equal(t, "review-1", rc.ReviewID)
		}
	}
	assert.True(t, found, "expected a RevisionChanged when only reviewID changed")
}

func TestPollOnce_SpecAddedEmitsChangeAdded(t *testing.T) {
	store := state.New()
	workItems := providertest.NewWorkItems()
	revisions := providertest.NewRevisions()
	specs := providertest.NewSpecs()
	specs.Records = append(specs.Records, provider.SpecRecord{FilePath: "specs/a.md", BlobSHA: "sha-a"})
	specs.Content["sha-a"] = "---\nstatus: approved\n---\nbody"

	var got []event.Event
	r := New(config.DefaultConfig().Reconciler, store, workItems, revisions, specs, func(ev event.Event) { got = append(got, ev) }, testLogger())
	require.NoError(t, r.PollOnce(context.Background()))

	var found bool
	for _, ev := range got {
		if sc, ok := ev.(event.SpecChanged); ok && sc.FilePath == "specs/a.md" {
			found = true
			assert.Equal(t, event.ChangeAdded, sc.ChangeType)
			assert.Equal(t, domain.SpecApproved, sc.FrontmatterStatus)
		}
	}
	assert.True(t, found, "expected a SpecChanged(added) for specs/a.md")
}
