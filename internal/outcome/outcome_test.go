package outcome

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounts_AddPartitionsOutcomes(t *testing.T) {
	var c Counts

	require.NoError(t, c.Add(VerdictSuccess))
	require.NoError(t, c.Add(VerdictExpectedConflict))
	require.NoError(t, c.Add(VerdictExpectedConflict))
	require.NoError(t, c.Add(VerdictUnexpectedError))
	require.NoError(t, c.Add(VerdictTimeout))
	require.NoError(t, c.Add(VerdictTransportException))

	assert.Equal(t, 1, c.Success)
	assert.Equal(t, 2, c.ExpectedConflict)
	assert.Equal(t, 1, c.UnexpectedError)
	assert.Equal(t, 1, c.Timeout)
	assert.Equal(t, 1, c.TransportException)
	assert.Equal(t, 6, c.Total())
}

func TestCounts_AddUnknownVerdict(t *testing.T) {
	var c Counts
	err := c.Add(Verdict("bogus"))
	require.Error(t, err)
	assert.Equal(t, 0, c.Total())
}

func TestCounts_Get(t *testing.T) {
	c := Counts{Success: 3, Timeout: 2}
	assert.Equal(t, 3, c.Get(VerdictSuccess))
	assert.Equal(t, 2, c.Get(VerdictTimeout))
	assert.Equal(t, 0, c.Get(VerdictExpectedConflict))
	assert.Equal(t, 0, c.Get(Verdict("bogus")))
}

func TestVerdict_Valid(t *testing.T) {
	for _, v := range Verdicts {
		assert.True(t, v.Valid(), "verdict %s should be valid", v)
	}
	assert.False(t, Verdict("maybe").Valid())
	assert.False(t, Verdict("").Valid())
}

func TestOutcome_Failed(t *testing.T) {
	assert.False(t, Outcome{Status: 200}.Failed())
	assert.True(t, Outcome{ErrKind: ErrTimeout}.Failed())
	assert.True(t, Outcome{ErrKind: ErrTransport}.Failed())
}
