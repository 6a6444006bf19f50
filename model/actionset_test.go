package model

import "testing"

func set(statuses ...string) *ActionSet {
	s := &ActionSet{ID: "as-1", Name: "cart_checkout"}
	for _, st := range statuses {
		s.Actions = append(s.Actions, Action{
			Name:   "step",
			Type:   ActionTypeInput,
			Status: st,
		})
	}
	return s
}

func TestActionSet_Status(t *testing.T) {
	tests := []struct {
		name     string
		statuses []string
		want     string
	}{
		{"all pending", []string{ActionStatusPending, ActionStatusPending}, SetStatusInProgress},
		{"partially done", []string{ActionStatusDone, ActionStatusWaiting}, SetStatusInProgress},
		{"all done", []string{ActionStatusDone, ActionStatusDone}, SetStatusCompleted},
		{"any error wins", []string{ActionStatusDone, ActionStatusError}, SetStatusError},
		{"error beats pending", []string{ActionStatusError, ActionStatusPending}, SetStatusError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := set(tt.statuses...).Status(); got != tt.want {
				t.Errorf("Status() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestActionSet_CurrentIndex(t *testing.T) {
	tests := []struct {
		name     string
		statuses []string
		want     int
	}{
		{"first pending", []string{ActionStatusPending, ActionStatusPending}, 0},
		{"skips done", []string{ActionStatusDone, ActionStatusPending}, 1},
		{"waiting is not terminal", []string{ActionStatusDone, ActionStatusWaiting}, 1},
		{"error is terminal", []string{ActionStatusError, ActionStatusPending}, 1},
		{"all terminal", []string{ActionStatusDone, ActionStatusError}, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := set(tt.statuses...).CurrentIndex(); got != tt.want {
				t.Errorf("CurrentIndex() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestActionSet_AllDone(t *testing.T) {
	if set(ActionStatusDone, ActionStatusWaiting).AllDone() {
		t.Error("AllDone() = true with a waiting action")
	}
	if !set(ActionStatusDone, ActionStatusDone).AllDone() {
		t.Error("AllDone() = false with all actions done")
	}
	if (&ActionSet{}).AllDone() {
		t.Error("AllDone() = true for an empty set")
	}
}

func TestAction_Editable(t *testing.T) {
	if !(Action{Type: ActionTypeInput}).Editable() {
		t.Error("input action should be editable")
	}
	if !(Action{Type: ActionTypeDeferred}).Editable() {
		t.Error("deferred action should be editable")
	}
	if (Action{Type: ActionTypeComputed}).Editable() {
		t.Error("computed action should not be editable")
	}
}
