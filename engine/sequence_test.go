package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailsprint/models"
)

func TestNextStepReturnsLowestStepNumber(t *testing.T) {
	steps := []models.SequenceStep{
		{StepNumber: 3, Subject: "third"},
		{StepNumber: 1, Subject: "first"},
		{StepNumber: 2, Subject: "second"},
	}

	step := NextStep(steps, models.Lead{})
	require.NotNil(t, step)
	assert.Equal(t, 1, step.StepNumber)
	assert.Equal(t, "first", step.Subject)
}

func TestNextStepEmptySequence(t *testing.T) {
	assert.Nil(t, NextStep(nil, models.Lead{}))
	assert.Nil(t, NextStep([]models.SequenceStep{}, models.Lead{}))
}

func TestSortStepsOrdersAscending(t *testing.T) {
	steps := []models.SequenceStep{
		{StepNumber: 5}, {StepNumber: 1}, {StepNumber: 3},
	}
	SortSteps(steps)
	assert.Equal(t, []int{1, 3, 5}, []int{steps[0].StepNumber, steps[1].StepNumber, steps[2].StepNumber})
}
