package model

import "time"

// Action status constants. done and error are terminal for an action.
const (
	ActionStatusPending = "pending"
	ActionStatusWaiting = "waiting"
	ActionStatusDone    = "done"
	ActionStatusError   = "error"
)

// Action type constants. The type decides whether a step may be edited by a
// caller and whether a successful submit completes it immediately or leaves
// it waiting for downstream confirmation.
const (
	// ActionTypeInput is an externally editable step that completes as soon
	// as valid data is submitted.
	ActionTypeInput = "input"
	// ActionTypeDeferred is an externally editable step that stays waiting
	// after submit until a system confirmation arrives.
	ActionTypeDeferred = "deferred"
	// ActionTypeComputed is a step that only system collaborators may
	// complete; callers cannot submit data to it.
	ActionTypeComputed = "computed"
)

// ActionSet derived status constants, computed on read and never stored.
const (
	SetStatusInProgress = "in_progress"
	SetStatusCompleted  = "completed"
	SetStatusError      = "error"
)

// ActionSet is one instance of a named multi-step workflow. Meta carries the
// creation arguments the builder accepted, so completion hooks can reach the
// workflow's subject without re-deriving it.
type ActionSet struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	TenantID  string              `json:"tenant_id"`
	Owner     string              `json:"owner"`
	Rights    map[string][]string `json:"rights,omitempty"`
	Meta      map[string]any      `json:"meta,omitempty"`
	Actions   []Action            `json:"actions"`
	Consumed  bool                `json:"consumed"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
	Version   int                 `json:"version"`
}

// Action is one step within an ActionSet, addressed by its index.
type Action struct {
	Name   string         `json:"name"`
	Type   string         `json:"type"`
	Status string         `json:"status"`
	Data   map[string]any `json:"data,omitempty"`
	Error  map[string]any `json:"error,omitempty"`
}

// Terminal returns true if the action has reached a terminal status.
func (a Action) Terminal() bool {
	return a.Status == ActionStatusDone || a.Status == ActionStatusError
}

// Editable returns true if the action type permits caller submits.
func (a Action) Editable() bool {
	return a.Type == ActionTypeInput || a.Type == ActionTypeDeferred
}

// Status computes the derived status of the whole set: error if any action
// is error, completed if every action is done, in_progress otherwise.
func (s *ActionSet) Status() string {
	allDone := true
	for _, a := range s.Actions {
		if a.Status == ActionStatusError {
			return SetStatusError
		}
		if a.Status != ActionStatusDone {
			allDone = false
		}
	}
	if allDone && len(s.Actions) > 0 {
		return SetStatusCompleted
	}
	return SetStatusInProgress
}

// CurrentIndex returns the lowest-indexed action not in a terminal status,
// or -1 if every action is terminal.
func (s *ActionSet) CurrentIndex() int {
	for i, a := range s.Actions {
		if !a.Terminal() {
			return i
		}
	}
	return -1
}

// AllDone returns true if every action is done.
func (s *ActionSet) AllDone() bool {
	for _, a := range s.Actions {
		if a.Status != ActionStatusDone {
			return false
		}
	}
	return len(s.Actions) > 0
}

// ActionSetSummary is a lightweight representation used in list views.
type ActionSetSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Owner     string    `json:"owner"`
	Status    string    `json:"status"`
	Consumed  bool      `json:"consumed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary returns the list-view representation of the set.
func (s *ActionSet) Summary() ActionSetSummary {
	return ActionSetSummary{
		ID:        s.ID,
		Name:      s.Name,
		Owner:     s.Owner,
		Status:    s.Status(),
		Consumed:  s.Consumed,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}
