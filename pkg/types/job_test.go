package types

import "testing"

func TestJobStateTransitions(t *testing.T) {
	valid := []struct{ from, to JobState }{
		{JobPending, JobActive},
		{JobActive, JobCompleted},
		{JobActive, JobFailed},
		{JobActive, JobDead},
		{JobFailed, JobPending},
		{JobFailed, JobDead},
	}
	for _, tc := range valid {
		if !tc.from.CanTransitionTo(tc.to) {
			t.Errorf("expected %s -> %s to be valid", tc.from, tc.to)
		}
	}

	invalid := []struct{ from, to JobState }{
		{JobPending, JobCompleted},
		{JobPending, JobDead},
		{JobCompleted, JobPending},
		{JobCompleted, JobActive},
		{JobDead, JobPending},
		{JobDead, JobActive},
		{JobActive, JobPending},
	}
	for _, tc := range invalid {
		if tc.from.CanTransitionTo(tc.to) {
			t.Errorf("expected %s -> %s to be invalid", tc.from, tc.to)
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	all := []JobState{JobPending, JobActive, JobCompleted, JobFailed, JobDead}
	for _, next := range all {
		if JobCompleted.CanTransitionTo(next) {
			t.Errorf("completed should be terminal, allows -> %s", next)
		}
		if JobDead.CanTransitionTo(next) {
			t.Errorf("dead should be terminal, allows -> %s", next)
		}
	}
}
