// Package audit provides audit logging for registry mutations.
package audit

import (
	"fmt"
	"time"
)

// ChangeType categorizes a single row-level mutation recorded in an Event.
type ChangeType string

const (
	ChangeAdd    ChangeType = "add"
	ChangeModify ChangeType = "modify"
	ChangeRemove ChangeType = "remove"
)

// Change records one table|key mutation a registry transition made, mirroring
// the store's own TABLE|key addressing so an audit entry can be read back
// against the tables it touched.
type Change struct {
	Table string     `json:"table"`
	Key   string     `json:"key"`
	Type  ChangeType `json:"type"`
}

// Event represents one auditable registry transition.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	UVN       string    `json:"uvn"`
	Operation string    `json:"operation"`
	Entity    string    `json:"entity,omitempty"` // e.g. "cell:3", "particle:7"
	Changes   []Change  `json:"changes"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	ConfigID  string    `json:"config_id,omitempty"` // set on redeploy
	Duration  time.Duration `json:"duration"`
}

// EventType categorizes a registry transition kind (spec §4.5).
type EventType string

const (
	EventTypeCreate       EventType = "create"
	EventTypeDefineCell   EventType = "define_cell"
	EventTypeDefineUser   EventType = "define_user"
	EventTypeDefinePart   EventType = "define_particle"
	EventTypeExcludeCell  EventType = "exclude_cell"
	EventTypeRekey        EventType = "rekey"
	EventTypeRedeploy     EventType = "redeploy"
	EventTypeLock         EventType = "lock"
	EventTypeUnlock       EventType = "unlock"
)

// Severity indicates the importance of an audit event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Filter defines criteria for querying audit events.
type Filter struct {
	UVN         string
	User        string
	Operation   string
	Entity      string
	StartTime   time.Time
	EndTime     time.Time
	SuccessOnly bool
	FailureOnly bool
	Limit       int
	Offset      int
}

// NewEvent creates a new audit event.
func NewEvent(user, uvn, operation string) *Event {
	return &Event{
		ID:        generateID(),
		Timestamp: time.Now(),
		User:      user,
		UVN:       uvn,
		Operation: operation,
	}
}

// WithEntity sets the entity this transition targeted.
func (e *Event) WithEntity(entity string) *Event {
	e.Entity = entity
	return e
}

// WithChanges sets the row-level changes this transition made.
func (e *Event) WithChanges(changes []Change) *Event {
	e.Changes = changes
	return e
}

// WithConfigID records the content-addressed config snapshot id produced by
// a redeploy transition.
func (e *Event) WithConfigID(configID string) *Event {
	e.ConfigID = configID
	return e
}

// WithSuccess marks the event as successful.
func (e *Event) WithSuccess() *Event {
	e.Success = true
	return e
}

// WithError marks the event as failed.
func (e *Event) WithError(err error) *Event {
	e.Success = false
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDuration sets the operation duration.
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}

func generateID() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
