package task

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/dd0wney/cluso-petasos/pkg/parcel"
)

// WorkItem is the content a task consumes and produces.
type WorkItem struct {
	Ingress []parcel.Manifest `json:"ingress,omitempty"`
	Egress  []parcel.Manifest `json:"egress,omitempty"`
}

// Fulfiller identifies who executes a task.
type Fulfiller struct {
	Component       string `json:"component,omitempty"`
	ProcessingPlant string `json:"processingPlant,omitempty"`
}

// FulfillmentRecord is the ActionableTask's view of its current execution
// attempt.
type FulfillmentRecord struct {
	FulfillmentTaskID   string            `json:"fulfillmentTaskId,omitempty"`
	Status              FulfillmentStatus `json:"status,omitempty"`
	Fulfiller           Fulfiller         `json:"fulfiller"`
	RegistrationInstant time.Time         `json:"registrationInstant"`
	StartInstant        time.Time         `json:"startInstant"`
	FinishInstant       time.Time         `json:"finishInstant"`
	LastCheckInstant    time.Time         `json:"lastCheckInstant"`
	UpdateInstant       time.Time         `json:"updateInstant"`
}

type Outcome struct {
	Status       OutcomeStatus `json:"status,omitempty"`
	EntryInstant time.Time     `json:"entryInstant"`
}

// Completion summarises a task once execution ends.
type Completion struct {
	Finalised           bool      `json:"finalised"`
	LastInChain         bool      `json:"lastInChain"`
	FinalisationInstant time.Time `json:"finalisationInstant"`
	Downstream          []TaskID  `json:"downstream,omitempty"`
}

// JourneyEntry is one step of a task's traceability journey.
type JourneyEntry struct {
	Instant   time.Time       `json:"instant"`
	Event     string          `json:"event"`
	Status    ExecutionStatus `json:"status,omitempty"`
	Fulfiller Fulfiller       `json:"fulfiller"`
}

// ActionableTask is the cluster-visible unit of work.
type ActionableTask struct {
	ID              TaskID            `json:"id" validate:"required"`
	TaskType        string            `json:"taskType,omitempty"`
	Performer       string            `json:"performer,omitempty"`
	WorkItem        WorkItem          `json:"workItem"`
	Status          ExecutionStatus   `json:"status,omitempty"`
	Fulfillment     FulfillmentRecord `json:"fulfillment"`
	Outcome         Outcome           `json:"outcome"`
	Completion      Completion        `json:"completion"`
	Journey         []JourneyEntry    `json:"journey,omitempty"`
	Directive       ExecutionCommand  `json:"directive,omitempty"`
	CreationInstant time.Time         `json:"creationInstant"`
	UpdateInstant   time.Time         `json:"updateInstant"`
}

// NewActionableTask creates a task with a fresh id, ready to be queued.
func NewActionableTask(taskType, performer string, ingress []parcel.Manifest, now time.Time) *ActionableTask {
	return &ActionableTask{
		ID:              NewTaskID(""),
		TaskType:        taskType,
		Performer:       performer,
		WorkItem:        WorkItem{Ingress: parcel.CloneAll(ingress)},
		CreationInstant: now,
		UpdateInstant:   now,
	}
}

// Clone returns a deep copy. A nil receiver yields nil.
func (t *ActionableTask) Clone() *ActionableTask {
	if t == nil {
		return nil
	}
	c := *t
	c.WorkItem.Ingress = parcel.CloneAll(t.WorkItem.Ingress)
	c.WorkItem.Egress = parcel.CloneAll(t.WorkItem.Egress)
	c.Completion.Downstream = slices.Clone(t.Completion.Downstream)
	c.Journey = slices.Clone(t.Journey)
	return &c
}

// IsRetirable reports whether the task has completed: either finalised or
// its fulfillment has reached a terminal status.
func (t *ActionableTask) IsRetirable() bool {
	return t.Completion.Finalised || t.Fulfillment.Status.IsTerminal()
}

// Age is the time since the task was last updated.
func (t *ActionableTask) Age(now time.Time) time.Duration {
	last := t.UpdateInstant
	if last.IsZero() {
		last = t.CreationInstant
	}
	return now.Sub(last)
}

// Record appends a journey entry.
func (t *ActionableTask) Record(event string, now time.Time) {
	t.Journey = append(t.Journey, JourneyEntry{
		Instant:   now,
		Event:     event,
		Status:    t.Status,
		Fulfiller: t.Fulfillment.Fulfiller,
	})
}

// Transition moves the task to status to, stamping every field the state
// machine owns. f, when non-nil, is the fulfillment attempt driving the
// change. The task is left untouched when the transition is not allowed.
func (t *ActionableTask) Transition(to ExecutionStatus, f *FulfillmentTask, now time.Time) error {
	from := t.Status
	if from == "" {
		from = StatusWaiting
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s for task %s", ErrInvalidTransition, from, to, t.ID)
	}

	t.Status = to
	rec := &t.Fulfillment
	if f != nil {
		rec.FulfillmentTaskID = f.ID
		rec.Fulfiller = f.Fulfiller
	}
	rec.Status = FulfillmentStatusFor(to)
	rec.LastCheckInstant = now
	rec.UpdateInstant = now

	switch to {
	case StatusWaiting:
		if rec.RegistrationInstant.IsZero() {
			rec.RegistrationInstant = now
		}
	case StatusExecuting:
		rec.StartInstant = now
		if f != nil && !f.StartInstant.IsZero() {
			rec.StartInstant = f.StartInstant
		}
	case StatusFinished, StatusFailed, StatusCancelled:
		rec.FinishInstant = now
		if f != nil && len(f.Egress) > 0 {
			t.WorkItem.Egress = parcel.CloneAll(f.Egress)
		}
		t.Completion.Finalised = false
		t.Completion.LastInChain = len(t.WorkItem.Egress) == 0
	case StatusFinalised:
		t.Completion.Finalised = true
		t.Completion.FinalisationInstant = now
	}

	if outcome := OutcomeFor(to); outcome != OutcomeUnknown {
		t.Outcome = Outcome{Status: outcome, EntryInstant: now}
	}
	t.Record(string(to), now)
	t.UpdateInstant = now
	return nil
}

// MergeFrom folds the fields carried by other into t:
//   - a non-empty status or directive wins;
//   - the fulfillment record wins when newer or when it names a fulfillment t lacks;
//   - the outcome wins when its entry instant is newer;
//   - finalisation is monotonic;
//   - journeys merge append-only;
//   - egress is replaced when other carries egress.
func (t *ActionableTask) MergeFrom(other *ActionableTask) {
	if other == nil {
		return
	}
	if other.TaskType != "" {
		t.TaskType = other.TaskType
	}
	if other.Performer != "" {
		t.Performer = other.Performer
	}
	if other.Status != "" {
		t.Status = other.Status
	}
	if other.Directive != "" {
		t.Directive = other.Directive
	}

	of := other.Fulfillment
	if of.UpdateInstant.After(t.Fulfillment.UpdateInstant) ||
		(of.FulfillmentTaskID != "" && t.Fulfillment.FulfillmentTaskID == "") {
		t.Fulfillment = of
	}

	if other.Outcome.EntryInstant.After(t.Outcome.EntryInstant) {
		t.Outcome = other.Outcome
	}

	if !t.Completion.Finalised || other.Completion.Finalised {
		finalised := t.Completion.Finalised
		t.Completion = other.Completion
		t.Completion.Downstream = slices.Clone(other.Completion.Downstream)
		t.Completion.Finalised = finalised || other.Completion.Finalised
	}

	t.Journey = mergeJourney(t.Journey, other.Journey)

	if len(t.WorkItem.Ingress) == 0 && len(other.WorkItem.Ingress) > 0 {
		t.WorkItem.Ingress = parcel.CloneAll(other.WorkItem.Ingress)
	}
	if len(other.WorkItem.Egress) > 0 {
		t.WorkItem.Egress = parcel.CloneAll(other.WorkItem.Egress)
	}

	if t.CreationInstant.IsZero() {
		t.CreationInstant = other.CreationInstant
	}
	if other.UpdateInstant.After(t.UpdateInstant) {
		t.UpdateInstant = other.UpdateInstant
	}
}

func mergeJourney(mine, theirs []JourneyEntry) []JourneyEntry {
	if len(theirs) == 0 {
		return mine
	}
	type key struct {
		at    int64
		event string
	}
	seen := make(map[key]struct{}, len(mine))
	for _, e := range mine {
		seen[key{e.Instant.UnixNano(), e.Event}] = struct{}{}
	}

	out := slices.Clone(mine)
	added := false
	for _, e := range theirs {
		k := key{e.Instant.UnixNano(), e.Event}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
		added = true
	}
	if added {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Instant.Before(out[j].Instant) })
	}
	return out
}
