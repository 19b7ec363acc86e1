package engine

import (
	"sort"

	"mailsprint/models"
)

// SortSteps orders sequence steps by step number, ascending.
func SortSteps(steps []models.SequenceStep) {
	sort.Slice(steps, func(i, j int) bool {
		return steps[i].StepNumber < steps[j].StepNumber
	})
}

// NextStep returns the step a lead should receive next. Dispatch currently
// sends the entry step only; later steps are stored and editable but are
// not advanced to automatically (TODO: follow-up scheduling keyed off
// DelayDays/DelayHours/DelayMinutes). The duplicate-send scan in the
// dispatcher keeps repeated passes from re-sending the entry step.
func NextStep(steps []models.SequenceStep, _ models.Lead) *models.SequenceStep {
	if len(steps) == 0 {
		return nil
	}
	SortSteps(steps)
	return &steps[0]
}
