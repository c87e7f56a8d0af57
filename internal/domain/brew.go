package domain

import "time"

// BrewStatus is the longer-horizon lifecycle of a batch after brew day.
type BrewStatus string

const (
	BrewBrewing      BrewStatus = "brewing"
	BrewFermenting   BrewStatus = "fermenting"
	BrewConditioning BrewStatus = "conditioning"
	BrewCompleted    BrewStatus = "completed"
	BrewArchived     BrewStatus = "archived"
)

var brewOrder = map[BrewStatus]int{
	BrewBrewing:      0,
	BrewFermenting:   1,
	BrewConditioning: 2,
	BrewCompleted:    3,
	BrewArchived:     4,
}

func (s BrewStatus) Rank() int {
	if r, ok := brewOrder[s]; ok {
		return r
	}
	return -1
}

func (s BrewStatus) Valid() bool {
	return s.Rank() >= 0
}

// Active reports whether the batch is still being tracked day to day.
func (s BrewStatus) Active() bool {
	return s == BrewBrewing || s == BrewFermenting || s == BrewConditioning
}

const (
	DefaultTargetFermentationDays = 14
	DefaultTargetConditioningDays = 14
)

type QuickNote struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

type BrewRecord struct {
	ID                     string        `json:"id"`
	RecipeID               *string       `json:"recipe_id,omitempty"`
	RecipeName             string        `json:"recipe_name"`
	SessionID              *string       `json:"session_id,omitempty"`
	Status                 BrewStatus    `json:"status" enum:"brewing,fermenting,conditioning,completed,archived"`
	BrewDate               time.Time     `json:"brew_date"`
	FermentationStart      *time.Time    `json:"fermentation_start,omitempty"`
	ConditioningStart      *time.Time    `json:"conditioning_start,omitempty"`
	PackagingDate          *time.Time    `json:"packaging_date,omitempty"`
	BatchSize              *float64      `json:"batch_size,omitempty"`
	OriginalGravity        *float64      `json:"original_gravity,omitempty"`
	FinalGravity           *float64      `json:"final_gravity,omitempty"`
	MeasuredABV            *float64      `json:"measured_abv,omitempty"`
	FermentationTemp       *float64      `json:"fermentation_temp,omitempty"`
	TargetFermentationDays int           `json:"target_fermentation_days"`
	TargetConditioningDays int           `json:"target_conditioning_days"`
	ActualFermentationDays *int          `json:"actual_fermentation_days,omitempty"`
	ActualConditioningDays *int          `json:"actual_conditioning_days,omitempty"`
	Notes                  string        `json:"notes,omitempty"`
	QuickNotes             []QuickNote   `json:"quick_notes"`
	Measurements           []Measurement `json:"measurements"`
	CreatedAt              time.Time     `json:"created_at"`
	UpdatedAt              time.Time     `json:"updated_at"`
}

// NotificationKind tags a scheduled alert so it can be matched for cancellation.
type NotificationKind string

const (
	NotifyBrewStep     NotificationKind = "brew-step"
	NotifyFermentation NotificationKind = "fermentation"
	NotifyConditioning NotificationKind = "conditioning"
)

type Notification struct {
	ID          string           `json:"id"`
	Kind        NotificationKind `json:"kind"`
	SubjectID   string           `json:"subject_id"` // session or brew id
	Title       string           `json:"title"`
	Body        string           `json:"body"`
	FireAt      time.Time        `json:"fire_at"`
	CreatedAt   time.Time        `json:"created_at"`
	DeliveredAt *time.Time       `json:"delivered_at,omitempty"`
	CanceledAt  *time.Time       `json:"canceled_at,omitempty"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}
