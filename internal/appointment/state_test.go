package appointment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition_Strict(t *testing.T) {
	cases := []struct {
		from, to TreatmentState
		want     bool
	}{
		{TreatmentPending, TreatmentNoShow, true},
		{TreatmentPending, TreatmentPending, true},
		{TreatmentPending, TreatmentVerified, false},
		{TreatmentPending, TreatmentTreated, false},
		{TreatmentVerified, TreatmentTreated, true},
		{TreatmentVerified, TreatmentNoShow, false},
		{TreatmentVerified, TreatmentPending, false},
		{TreatmentTreated, TreatmentTreated, true},
		{TreatmentTreated, TreatmentPending, false},
		{TreatmentNoShow, TreatmentTreated, false},
		{TreatmentPending, "healed", false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, canTransition(tc.from, tc.to, true), "%s -> %s", tc.from, tc.to)
	}
}

func TestCanTransition_Permissive(t *testing.T) {
	assert.True(t, canTransition(TreatmentTreated, TreatmentPending, false))
	assert.True(t, canTransition(TreatmentNoShow, TreatmentVerified, false))
	assert.False(t, canTransition(TreatmentPending, "healed", false))
}

func TestStatus(t *testing.T) {
	assert.True(t, StatusUpcoming.Live())
	assert.True(t, StatusApproved.Live())
	assert.False(t, StatusPast.Live())
	assert.False(t, StatusCancelled.Live())
	assert.False(t, StatusRejected.Live())

	assert.True(t, TreatmentTreated.Terminal())
	assert.True(t, TreatmentNoShow.Terminal())
	assert.False(t, TreatmentVerified.Terminal())
}
