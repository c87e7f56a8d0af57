package domain

import "time"

// SessionStatus is the coarse lifecycle of a brew-day session. Values are ordered;
// a session only ever moves forward.
type SessionStatus string

const (
	SessionPlanning     SessionStatus = "planning"
	SessionBrewing      SessionStatus = "brewing"
	SessionFermenting   SessionStatus = "fermenting"
	SessionConditioning SessionStatus = "conditioning"
	SessionCompleted    SessionStatus = "completed"
)

var sessionOrder = map[SessionStatus]int{
	SessionPlanning:     0,
	SessionBrewing:      1,
	SessionFermenting:   2,
	SessionConditioning: 3,
	SessionCompleted:    4,
}

// Rank returns the position of s in the lifecycle, or -1 if unknown.
func (s SessionStatus) Rank() int {
	if r, ok := sessionOrder[s]; ok {
		return r
	}
	return -1
}

// Active reports whether a session in this status counts as the in-progress session.
func (s SessionStatus) Active() bool {
	return s == SessionBrewing || s == SessionFermenting
}

type BrewStepTask struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

type BrewStep struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Duration    int            `json:"duration"` // planned minutes
	Temperature *float64       `json:"temperature,omitempty"`
	Description string         `json:"description,omitempty"`
	Completed   bool           `json:"completed"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Tasks       []BrewStepTask `json:"tasks"`
}

// PlannedSeconds is the full countdown length for the step.
func (s BrewStep) PlannedSeconds() int {
	return s.Duration * 60
}

type MeasurementType string

const (
	MeasurementOG          MeasurementType = "og"
	MeasurementFG          MeasurementType = "fg"
	MeasurementTemperature MeasurementType = "temperature"
	MeasurementPH          MeasurementType = "ph"
	MeasurementVolume      MeasurementType = "volume"
	MeasurementGravity     MeasurementType = "gravity"
)

type Measurement struct {
	ID        string          `json:"id"`
	Type      MeasurementType `json:"type"`
	Value     float64         `json:"value"`
	Unit      string          `json:"unit,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Notes     string          `json:"notes,omitempty"`
}

type BrewSession struct {
	ID                        string        `json:"id"`
	RecipeID                  string        `json:"recipe_id"`
	RecipeName                string        `json:"recipe_name"`
	Status                    SessionStatus `json:"status"`
	StartedAt                 time.Time     `json:"started_at"`
	CompletedAt               *time.Time    `json:"completed_at,omitempty"`
	CurrentStepIndex          int           `json:"current_step_index"`
	CurrentStepTargetTs       *int64        `json:"current_step_target_ts,omitempty"` // epoch millis
	CurrentStepNotificationID string        `json:"current_step_notification_id,omitempty"`
	Steps                     []BrewStep    `json:"steps"`
	Measurements              []Measurement `json:"measurements"`
	Notes                     []string      `json:"notes"`
	Efficiency                *float64      `json:"efficiency,omitempty"`
	ActualOG                  *float64      `json:"actual_og,omitempty"`
	ActualFG                  *float64      `json:"actual_fg,omitempty"`
	ActualABV                 *float64      `json:"actual_abv,omitempty"`
}

// CurrentStep returns the step the timer applies to. ok is false for a session with no steps.
func (s BrewSession) CurrentStep() (BrewStep, bool) {
	if s.CurrentStepIndex < 0 || s.CurrentStepIndex >= len(s.Steps) {
		return BrewStep{}, false
	}
	return s.Steps[s.CurrentStepIndex], true
}

// TimerRunning reports whether a countdown deadline is stored.
func (s BrewSession) TimerRunning() bool {
	return s.CurrentStepTargetTs != nil
}

type Recipe struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Style     string    `json:"style,omitempty"`
	BatchSize float64   `json:"batch_size,omitempty"` // liters
	BoilTime  int       `json:"boil_time"`            // minutes
	OG        float64   `json:"og,omitempty"`
	FG        float64   `json:"fg,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StepTaskTemplates maps a step id to checklist texts reused by future sessions.
type StepTaskTemplates map[string][]string
