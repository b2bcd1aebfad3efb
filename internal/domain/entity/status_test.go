package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aymenbha/fattoura-api/internal/domain"
)

// Liste exhaustive des transitions légales; tout autre couple est une
// violation.
var legalPairs = map[[2]Status]bool{
	{StatusDraft, StatusValidated}:    true,
	{StatusValidated, StatusSigned}:   true,
	{StatusSigned, StatusSubmitted}:   true,
	{StatusSubmitted, StatusAccepted}: true,
	{StatusSubmitted, StatusRejected}: true,
	{StatusAccepted, StatusArchived}:  true,
	{StatusRejected, StatusArchived}:  true,
}

func TestCanTransitionExhaustive(t *testing.T) {
	for _, from := range AllStatuses {
		for _, to := range AllStatuses {
			want := legalPairs[[2]Status{from, to}]
			assert.Equal(t, want, from.CanTransition(to), "%s -> %s", from, to)
		}
	}
}

func TestTransitionToLegal(t *testing.T) {
	inv := &Invoice{Status: StatusDraft}
	require.NoError(t, inv.TransitionTo(StatusValidated))
	assert.Equal(t, StatusValidated, inv.Status)
}

func TestTransitionToIllegalLeavesStateUnchanged(t *testing.T) {
	inv := &Invoice{Status: StatusDraft}
	err := inv.TransitionTo(StatusSubmitted)
	require.Error(t, err)
	assert.Equal(t, StatusDraft, inv.Status)

	var violation *domain.StateViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, string(StatusDraft), violation.From)
	assert.Equal(t, string(StatusSubmitted), violation.To)
}

func TestNoTransitionOutOfArchived(t *testing.T) {
	for _, to := range AllStatuses {
		inv := &Invoice{Status: StatusArchived}
		require.Error(t, inv.TransitionTo(to), "ARCHIVED -> %s", to)
	}
}

func TestFrozen(t *testing.T) {
	assert.False(t, StatusDraft.Frozen())
	assert.False(t, StatusValidated.Frozen())
	assert.True(t, StatusSigned.Frozen())
	assert.True(t, StatusSubmitted.Frozen())
	assert.True(t, StatusAccepted.Frozen())
	assert.True(t, StatusRejected.Frozen())
	assert.True(t, StatusArchived.Frozen())
}

func TestIsTerminal(t *testing.T) {
	for _, s := range AllStatuses {
		assert.Equal(t, s == StatusArchived, s.IsTerminal(), "%s", s)
	}
}
