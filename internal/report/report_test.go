package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stampede-io/stampede/internal/dispatch"
	"github.com/stampede-io/stampede/internal/invariant"
	"github.com/stampede-io/stampede/internal/outcome"
)

func intPtr(n int) *int { return &n }

func sampleOutcomes() ([]outcome.Outcome, []outcome.Verdict, outcome.Counts) {
	base := time.Now()
	outcomes := []outcome.Outcome{
		{Seq: 1, Status: 201, Body: []byte(`{"id":"1"}`), Start: base, Elapsed: 12 * time.Millisecond},
		{Seq: 2, Status: 409, Body: []byte(`{"error":"taken"}`), Start: base, Elapsed: 9 * time.Millisecond},
		{Seq: 3, Status: 409, Body: []byte(`{"error":"taken"}`), Start: base, Elapsed: 11 * time.Millisecond},
		{Seq: 4, ErrKind: outcome.ErrTimeout, Err: "context deadline exceeded", Elapsed: 2 * time.Second},
	}
	verdicts := []outcome.Verdict{
		outcome.VerdictSuccess,
		outcome.VerdictExpectedConflict,
		outcome.VerdictExpectedConflict,
		outcome.VerdictTimeout,
	}
	counts := outcome.Counts{Success: 1, ExpectedConflict: 2, Timeout: 1}
	return outcomes, verdicts, counts
}

func TestBuild_OneEntryPerOutcome(t *testing.T) {
	outcomes, verdicts, counts := sampleOutcomes()

	r := Build("tenant-slug-race", "slug uniqueness", "race-test-slug",
		outcomes, verdicts, counts, invariant.Judgment{Decision: invariant.Pass},
		intPtr(1), dispatch.Stats{}, 0)

	require.Len(t, r.Entries, 4)
	assert.NotEmpty(t, r.RunID)
	assert.Equal(t, 4, r.Requests)
	for i, e := range r.Entries {
		assert.Equal(t, outcomes[i].Seq, e.Seq)
		assert.Equal(t, verdicts[i], e.Verdict)
	}
}

func TestBuild_NoAnomaliesOnPass(t *testing.T) {
	outcomes, verdicts, counts := sampleOutcomes()

	r := Build("s", "", "k", outcomes, verdicts, counts,
		invariant.Judgment{Decision: invariant.Pass}, nil, dispatch.Stats{}, 0)

	assert.Empty(t, r.Anomalies)
}

func TestBuild_AnomaliesIncludeFailures(t *testing.T) {
	outcomes, verdicts, counts := sampleOutcomes()

	r := Build("s", "", "k", outcomes, verdicts, counts,
		invariant.Judgment{Decision: invariant.Fail, Reason: invariant.ReasonConflictBounds},
		nil, dispatch.Stats{}, 0)

	// Only the timeout is anomalous; conflicts and the single success are
	// expected behavior for this failure reason.
	require.Len(t, r.Anomalies, 1)
	assert.Equal(t, 4, r.Anomalies[0].Seq)
	assert.Equal(t, outcome.VerdictTimeout, r.Anomalies[0].Verdict)
}

func TestBuild_MultiplicityFailureKeepsWinners(t *testing.T) {
	base := time.Now()
	outcomes := []outcome.Outcome{
		{Seq: 1, Status: 201, Body: []byte(`{"id":"1"}`), Start: base, Elapsed: time.Millisecond},
		{Seq: 2, Status: 201, Body: []byte(`{"id":"2"}`), Start: base, Elapsed: time.Millisecond},
		{Seq: 3, Status: 409, Start: base, Elapsed: time.Millisecond},
	}
	verdicts := []outcome.Verdict{outcome.VerdictSuccess, outcome.VerdictSuccess, outcome.VerdictExpectedConflict}
	counts := outcome.Counts{Success: 2, ExpectedConflict: 1}

	r := Build("s", "", "k", outcomes, verdicts, counts,
		invariant.Judgment{Decision: invariant.Fail, Reason: invariant.ReasonMultiplicity},
		nil, dispatch.Stats{}, 0)

	// The duplicate winners are the evidence; both carry body excerpts.
	require.Len(t, r.Anomalies, 2)
	assert.Equal(t, `{"id":"1"}`, r.Anomalies[0].BodyExcerpt)
	assert.Equal(t, `{"id":"2"}`, r.Anomalies[1].BodyExcerpt)
}

func TestBuild_AnomalyLimit(t *testing.T) {
	var outcomes []outcome.Outcome
	var verdicts []outcome.Verdict
	var counts outcome.Counts
	for i := 1; i <= 10; i++ {
		outcomes = append(outcomes, outcome.Outcome{Seq: i, Status: 500})
		verdicts = append(verdicts, outcome.VerdictUnexpectedError)
		counts.UnexpectedError++
	}

	r := Build("s", "", "k", outcomes, verdicts, counts,
		invariant.Judgment{Decision: invariant.Inconclusive, Reason: invariant.ReasonNoSignal},
		nil, dispatch.Stats{}, 3)

	assert.Len(t, r.Anomalies, 3)
}

func TestBuild_BodyExcerptTruncated(t *testing.T) {
	long := strings.Repeat("z", maxExcerpt+50)
	outcomes := []outcome.Outcome{{Seq: 1, Status: 500, Body: []byte(long)}}
	verdicts := []outcome.Verdict{outcome.VerdictUnexpectedError}

	r := Build("s", "", "k", outcomes, verdicts, outcome.Counts{UnexpectedError: 1},
		invariant.Judgment{Decision: invariant.Fail, Reason: invariant.ReasonConflictBounds},
		nil, dispatch.Stats{}, 0)

	require.Len(t, r.Anomalies, 1)
	assert.Len(t, r.Anomalies[0].BodyExcerpt, maxExcerpt+3)
	assert.True(t, strings.HasSuffix(r.Anomalies[0].BodyExcerpt, "..."))
}

func TestSuccessLatency_MinMeanMax(t *testing.T) {
	base := time.Now()
	outcomes := []outcome.Outcome{
		{Seq: 1, Status: 201, Start: base, Elapsed: 10 * time.Millisecond},
		{Seq: 2, Status: 201, Start: base, Elapsed: 30 * time.Millisecond},
		{Seq: 3, Status: 409, Start: base, Elapsed: 500 * time.Millisecond},
	}
	verdicts := []outcome.Verdict{outcome.VerdictSuccess, outcome.VerdictSuccess, outcome.VerdictExpectedConflict}

	lat := successLatency(outcomes, verdicts)

	require.NotNil(t, lat)
	assert.Equal(t, 10*time.Millisecond, lat.Min)
	assert.Equal(t, 30*time.Millisecond, lat.Max)
	assert.Equal(t, 20*time.Millisecond, lat.Mean)
}

func TestSuccessLatency_NilWithoutSuccesses(t *testing.T) {
	outcomes := []outcome.Outcome{{Seq: 1, Status: 409}}
	verdicts := []outcome.Verdict{outcome.VerdictExpectedConflict}

	assert.Nil(t, successLatency(outcomes, verdicts))
}
