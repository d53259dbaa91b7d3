package submission

import (
	"slices"
)

// Outcome is what became of a workflow job, as seen by the hook.
type Outcome string

// Outcome constants
const (
	OutcomeNone               Outcome = ""
	OutcomeInProgress         Outcome = "IN_PROGRESS"
	OutcomeDone               Outcome = "DONE"
	OutcomeRejected           Outcome = "REJECTED"
	OutcomeError              Outcome = "ERROR_ENCOUNTERED_DURING_EXECUTION"
	OutcomeStoppedUponRequest Outcome = "STOPPED_UPON_REQUEST"
	OutcomeStoppedTimeOut     Outcome = "STOPPED_TIME_OUT"
	OutcomeDockerPullFailed   Outcome = "DOCKER_PULL_FAILED"
)

// Description is the text shown to submitters when an item is closed with o.
func (o Outcome) Description() string {
	switch o {
	case OutcomeStoppedUponRequest:
		return "STOPPED UPON REQUEST"
	case OutcomeDockerPullFailed:
		return "DOCKER PULL FAILED"
	case OutcomeError:
		return "ERROR"
	case OutcomeStoppedTimeOut:
		return "EXCEEDED TIME QUOTA"
	default:
		return string(o)
	}
}

// Message is the one-line summary used in notification bodies.
func (o Outcome) Message() string {
	switch o {
	case OutcomeDone:
		return "Finished normally."
	case OutcomeRejected:
		return "Rejected."
	case OutcomeError:
		return "Error encountered during execution."
	case OutcomeStoppedUponRequest:
		return "Submission halted upon user request."
	case OutcomeStoppedTimeOut:
		return "Submission exceeded allotted time."
	case OutcomeDockerPullFailed:
		return "Unable to pull the workflow image."
	case OutcomeInProgress:
		return "In progress."
	default:
		return string(o)
	}
}

// Patch accumulates intended changes to a Status. Applying it is a pure
// merge; nothing is sent until a records.Updater pushes it.
type Patch struct {
	adds            Annotations
	removes         []string
	state           *State
	canCancel       *bool
	cancelRequested *bool
}

// NewPatch returns an empty patch.
func NewPatch() *Patch {
	return &Patch{}
}

// Set upserts an annotation and cancels any pending removal of its key.
func (p *Patch) Set(a Annotation) *Patch {
	p.removes = slices.DeleteFunc(p.removes, func(k string) bool { return k == a.Key })
	p.adds = p.adds.Set(a)
	return p
}

// SetString upserts a string annotation.
func (p *Patch) SetString(key, value string, private bool) *Patch {
	return p.Set(StringAnnotation(key, value, private))
}

// SetLong upserts an integer annotation.
func (p *Patch) SetLong(key string, value int64, private bool) *Patch {
	return p.Set(LongAnnotation(key, value, private))
}

// SetDouble upserts a floating point annotation.
func (p *Patch) SetDouble(key string, value float64, private bool) *Patch {
	return p.Set(DoubleAnnotation(key, value, private))
}

// Remove schedules removal of key and drops any pending add for it.
func (p *Patch) Remove(key string) *Patch {
	p.adds = p.adds.Remove(key)
	if !slices.Contains(p.removes, key) {
		p.removes = append(p.removes, key)
	}
	return p
}

// SetState sets the new state.
func (p *Patch) SetState(s State) *Patch {
	p.state = &s
	return p
}

// SetCanCancel sets the can-cancel flag.
func (p *Patch) SetCanCancel(v bool) *Patch {
	p.canCancel = &v
	return p
}

// SetCancelRequested sets the cancel-requested flag.
func (p *Patch) SetCancelRequested(v bool) *Patch {
	p.cancelRequested = &v
	return p
}

// State returns the pending state, if any.
func (p *Patch) State() (State, bool) {
	if p.state == nil {
		return "", false
	}
	return *p.state, true
}

// Pending returns the annotation scheduled for key.
func (p *Patch) Pending(key string) (Annotation, bool) {
	return p.adds.Get(key)
}

// Removes reports whether key is scheduled for removal.
func (p *Patch) Removes(key string) bool {
	return slices.Contains(p.removes, key)
}

// Empty reports whether applying p would change nothing.
func (p *Patch) Empty() bool {
	return len(p.adds) == 0 && len(p.removes) == 0 &&
		p.state == nil && p.canCancel == nil && p.cancelRequested == nil
}

// Apply merges p into a copy of base: adds first, then removals, then the
// non-nil flag and state fields. base is not modified.
func (p *Patch) Apply(base *Status) *Status {
	out := base.Clone()
	if out == nil {
		out = &Status{}
	}
	for _, a := range p.adds {
		out.Annotations = out.Annotations.Set(a)
	}
	for _, k := range p.removes {
		out.Annotations = out.Annotations.Remove(k)
	}
	if p.state != nil {
		out.State = *p.state
	}
	if p.canCancel != nil {
		out.CanCancel = Bool(*p.canCancel)
	}
	if p.cancelRequested != nil {
		out.CancelRequested = Bool(*p.cancelRequested)
	}
	return out
}

// SetStatus moves the patch to state and derives STATUS_DESCRIPTION and
// canCancel from the state and outcome. Only EVALUATION_IN_PROGRESS items
// can be cancelled.
func (p *Patch) SetStatus(state State, outcome Outcome) *Patch {
	var description string
	cancelable := false
	switch {
	case state == StateEvaluationInProgress:
		description = "IN PROGRESS"
		cancelable = true
	case state == StateAccepted:
		description = "COMPLETED"
	case state == StateClosed && outcome != OutcomeNone:
		description = outcome.Description()
	case outcome != OutcomeNone:
		description = string(outcome)
	default:
		description = string(state)
	}
	p.SetState(state)
	p.SetString(KeyStatusDescription, description, Public)
	p.SetCanCancel(cancelable)
	return p
}
