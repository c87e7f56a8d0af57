package server

import (
	"encoding/json"

	"brewline/internal/domain"
	"brewline/internal/engine"
)

// Request payloads

type CreateRecipeRequest struct {
	ID        string  `json:"id,omitempty"`
	Name      string  `json:"name"`
	Style     string  `json:"style,omitempty"`
	BatchSize float64 `json:"batch_size,omitempty"`
	BoilTime  int     `json:"boil_time"`
	OG        float64 `json:"og,omitempty"`
	FG        float64 `json:"fg,omitempty"`
	Notes     string  `json:"notes,omitempty"`
}

type StartSessionRequest struct {
	RecipeID string `json:"recipe_id"`
}

type GoToStepRequest struct {
	Index int `json:"index"`
}

type SetStatusRequest struct {
	Status string `json:"status" enum:"planning,brewing,fermenting,conditioning,completed"`
}

type TextRequest struct {
	Text string `json:"text"`
}

type MeasurementRequest struct {
	Type  string  `json:"type" enum:"og,fg,temperature,ph,volume,gravity"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
	Notes string  `json:"notes,omitempty"`
}

type TimerRequest struct {
	Seconds int `json:"seconds"`
}

type StartBrewRequest struct {
	RecipeID               *string  `json:"recipe_id,omitempty"`
	RecipeName             string   `json:"recipe_name"`
	BatchSize              *float64 `json:"batch_size,omitempty"`
	TargetFermentationDays int      `json:"target_fermentation_days,omitempty"`
	TargetConditioningDays int      `json:"target_conditioning_days,omitempty"`
	FermentationTemp       *float64 `json:"fermentation_temp,omitempty"`
	Notes                  string   `json:"notes,omitempty"`
}

type StartFermentationRequest struct {
	OriginalGravity float64  `json:"original_gravity"`
	Temperature     *float64 `json:"temperature,omitempty"`
	TargetDays      *int     `json:"target_days,omitempty"`
}

type StartConditioningRequest struct {
	FinalGravity float64 `json:"final_gravity"`
	TargetDays   *int    `json:"target_days,omitempty"`
}

// Responses

type StepResponse struct {
	Session    *domain.BrewSession `json:"session,omitempty"`
	Completion *CompletionResponse `json:"completion,omitempty"`
}

type CompletionResponse struct {
	Session      *domain.BrewSession `json:"session,omitempty"`
	Record       *engine.BrewView    `json:"record,omitempty"`
	Discarded    bool                `json:"discarded"`
	Message      string              `json:"message"`
	HandoffError string              `json:"handoff_error,omitempty"`
}

type TickResponse struct {
	Timer       *engine.TimerState  `json:"timer,omitempty"`
	StepElapsed *domain.BrewSession `json:"step_elapsed,omitempty"`
}

type BrewListResponse struct {
	Active   []engine.BrewView `json:"active"`
	Archived []engine.BrewView `json:"archived"`
}

type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	Payload    map[string]any `json:"payload"`
}

type EventListResponse struct {
	Items []EventResponse `json:"items"`
}

func completionResponse(res *engine.CompletionResult, t *engine.Tracker) *CompletionResponse {
	if res == nil {
		return nil
	}
	out := &CompletionResponse{Session: res.Session, Discarded: res.Discarded, Message: res.Message}
	if res.Record != nil {
		view := t.View(*res.Record)
		out.Record = &view
	}
	if res.HandoffErr != nil {
		out.HandoffError = res.HandoffErr.Error()
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	payload := map[string]any{}
	if e.Payload != "" {
		_ = json.Unmarshal([]byte(e.Payload), &payload)
	}
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		Payload:    payload,
	}
}

func brewViews(t *engine.Tracker, records []domain.BrewRecord) []engine.BrewView {
	out := make([]engine.BrewView, 0, len(records))
	for _, b := range records {
		out = append(out, t.View(b))
	}
	return out
}
