package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"

	"brewline/internal/domain"
	"brewline/internal/events"
	"brewline/internal/notify"
	"brewline/internal/repo"
)

const noteTimeLayout = "02/01/2006 15:04"

// stepTemplate is the fixed brew-day sequence. Durations are minutes; the bittering
// boil is derived from the recipe's boil time.
var stepTemplate = []struct {
	id, name, description string
	duration              int
	temperature           float64
}{
	{"1", "Prepare Equipment", "Sanitize all equipment and gather ingredients", 15, 0},
	{"2", "Heat Water", "Heat strike water to mash temperature", 30, 72},
	{"3", "Mash In", "Add grains and maintain mash temperature", 60, 66},
	{"4", "Mash Out", "Raise temperature to mash out", 10, 75},
	{"5", "Sparge", "Rinse grains to extract remaining sugars", 30, 75},
	{"6", "Boil - Bittering Hops", "Add bittering hops and start boil timer", -1, 0},
	{"7", "Boil - Flavor Hops", "Add flavor hops", 10, 0},
	{"8", "Boil - Aroma Hops", "Add aroma hops and finish boil", 5, 0},
	{"9", "Cool Down", "Cool wort to pitching temperature", 20, 20},
	{"10", "Transfer & Pitch", "Transfer to fermenter and pitch yeast", 15, 0},
}

// DefaultSteps builds the ten brew-day steps for a recipe, pre-populating each step's
// checklist from templates.
func DefaultSteps(boilTime int, templates domain.StepTaskTemplates) []domain.BrewStep {
	steps := make([]domain.BrewStep, 0, len(stepTemplate))
	for _, tpl := range stepTemplate {
		step := domain.BrewStep{
			ID:          tpl.id,
			Name:        tpl.name,
			Duration:    tpl.duration,
			Description: tpl.description,
			Tasks:       []domain.BrewStepTask{},
		}
		if tpl.duration < 0 {
			step.Duration = max(0, boilTime-15)
		}
		if tpl.temperature != 0 {
			temp := tpl.temperature
			step.Temperature = &temp
		}
		for _, text := range templates[tpl.id] {
			step.Tasks = append(step.Tasks, domain.BrewStepTask{ID: uuid.NewString(), Text: text})
		}
		steps = append(steps, step)
	}
	return steps
}

// SessionPatch is a partial update. Nil fields are left unchanged. ClearTimer drops
// the running deadline and its notification handle before the other fields apply.
type SessionPatch struct {
	Status                    *domain.SessionStatus
	CompletedAt               *time.Time
	CurrentStepIndex          *int
	ClearTimer                bool
	CurrentStepTargetTs       *int64
	CurrentStepNotificationID *string
	Steps                     []domain.BrewStep
	Measurements              []domain.Measurement
	Notes                     []string
	Efficiency                *float64
	ActualOG                  *float64
	ActualFG                  *float64
	ActualABV                 *float64
}

func (p SessionPatch) apply(s *domain.BrewSession) {
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.CompletedAt != nil {
		at := *p.CompletedAt
		s.CompletedAt = &at
	}
	if p.CurrentStepIndex != nil {
		s.CurrentStepIndex = *p.CurrentStepIndex
	}
	if p.ClearTimer {
		s.CurrentStepTargetTs = nil
		s.CurrentStepNotificationID = ""
	}
	if p.CurrentStepTargetTs != nil {
		ts := *p.CurrentStepTargetTs
		s.CurrentStepTargetTs = &ts
	}
	if p.CurrentStepNotificationID != nil {
		s.CurrentStepNotificationID = *p.CurrentStepNotificationID
	}
	if p.Steps != nil {
		s.Steps = p.Steps
	}
	if p.Measurements != nil {
		s.Measurements = p.Measurements
	}
	if p.Notes != nil {
		s.Notes = p.Notes
	}
	if p.Efficiency != nil {
		s.Efficiency = p.Efficiency
	}
	if p.ActualOG != nil {
		s.ActualOG = p.ActualOG
	}
	if p.ActualFG != nil {
		s.ActualFG = p.ActualFG
	}
	if p.ActualABV != nil {
		s.ActualABV = p.ActualABV
	}
}

// MeasurementInput is a reading before it gets an id and timestamp.
type MeasurementInput struct {
	Type  domain.MeasurementType
	Value float64
	Unit  string
	Notes string
}

// CompletionResult describes how a session ended.
type CompletionResult struct {
	Session *domain.BrewSession `json:"session,omitempty"`
	Record  *domain.BrewRecord  `json:"record,omitempty"`
	// Discarded is set when no brew record could take over the session.
	Discarded bool   `json:"discarded"`
	Message   string `json:"message"`
	// HandoffErr reports a failed brew record hand-off. The session stays completed.
	HandoffErr error `json:"-"`
}

func (e Engine) load(ctx context.Context, id string) (*domain.BrewSession, error) {
	s, err := e.Sessions.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return &s, nil
}

// loadOpen is load for the operations that drive brew day. A completed session only
// takes notes and measurements, so the rest are rejected.
func (e Engine) loadOpen(ctx context.Context, id string) (*domain.BrewSession, error) {
	s, err := e.load(ctx, id)
	if err != nil || s == nil {
		return nil, err
	}
	if s.Status == domain.SessionCompleted {
		return nil, fmt.Errorf("%w: session %s is completed", ErrInvalidTransition, id)
	}
	return s, nil
}

// GetSession returns the session, or nil if it does not exist.
func (e Engine) GetSession(ctx context.Context, id string) (*domain.BrewSession, error) {
	return e.load(ctx, id)
}

func (e Engine) ListSessions(ctx context.Context) ([]domain.BrewSession, error) {
	return e.Sessions.List(ctx)
}

// ActiveSession returns the session currently brewing or fermenting, or nil.
func (e Engine) ActiveSession(ctx context.Context) (*domain.BrewSession, error) {
	s, err := e.Sessions.Active(ctx)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// StartSessionForRecipe looks up a stored recipe and starts a session for it.
func (e Engine) StartSessionForRecipe(ctx context.Context, recipeID string) (domain.BrewSession, error) {
	recipe, err := e.Recipes.Get(ctx, recipeID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.BrewSession{}, fmt.Errorf("%w: %s", ErrRecipeNotFound, recipeID)
		}
		return domain.BrewSession{}, err
	}
	return e.StartSession(ctx, recipe)
}

// StartSession creates a brewing session at step 0 with no running timer. Nothing
// becomes active unless the write succeeds.
func (e Engine) StartSession(ctx context.Context, recipe domain.Recipe) (domain.BrewSession, error) {
	active, err := e.ActiveSession(ctx)
	if err != nil {
		return domain.BrewSession{}, err
	}
	if active != nil {
		return domain.BrewSession{}, fmt.Errorf("%w: %s (%s)", ErrSessionActive, active.RecipeName, active.ID)
	}
	templates, err := e.Templates.Load(ctx)
	if err != nil {
		e.swallow("load task templates", err)
		templates = nil
	}
	s := domain.BrewSession{
		ID:               uuid.NewString(),
		RecipeID:         recipe.ID,
		RecipeName:       recipe.Name,
		Status:           domain.SessionBrewing,
		StartedAt:        e.now(),
		CurrentStepIndex: 0,
		Steps:            DefaultSteps(recipe.BoilTime, templates),
		Measurements:     []domain.Measurement{},
		Notes:            []string{},
	}
	if err := e.Sessions.Put(ctx, s); err != nil {
		return domain.BrewSession{}, fmt.Errorf("save session: %w", err)
	}
	e.record(ctx, events.SessionStarted, s.ID, events.EventPayload{"recipe_id": recipe.ID, "recipe_name": recipe.Name})
	return s, nil
}

// UpdateSession merges patch into the stored session. Every session mutation goes
// through here. Returns nil when the session does not exist.
func (e Engine) UpdateSession(ctx context.Context, id string, patch SessionPatch) (*domain.BrewSession, error) {
	s, err := e.load(ctx, id)
	if err != nil || s == nil {
		return nil, err
	}
	patch.apply(s)
	if err := e.Sessions.Put(ctx, *s); err != nil {
		return nil, fmt.Errorf("save session %s: %w", id, err)
	}
	return s, nil
}

// SetStatus moves a session forward to status.
func (e Engine) SetStatus(ctx context.Context, id string, status domain.SessionStatus) (*domain.BrewSession, error) {
	s, err := e.load(ctx, id)
	if err != nil || s == nil {
		return nil, err
	}
	if status.Rank() <= s.Status.Rank() {
		return nil, fmt.Errorf("%w: session %s is %s", ErrInvalidTransition, id, s.Status)
	}
	patch := SessionPatch{Status: &status}
	if status == domain.SessionCompleted {
		now := e.now()
		patch.CompletedAt = &now
		patch.ClearTimer = true
		e.cancelNotification(ctx, id, s.CurrentStepNotificationID)
	}
	updated, err := e.UpdateSession(ctx, id, patch)
	if err == nil && updated != nil {
		e.record(ctx, events.SessionStatus, id, events.EventPayload{"from": s.Status, "to": status})
	}
	return updated, err
}

// GoToStep stops any running countdown and moves to target, clamped into the step
// range. The destination starts paused at its full planned duration.
func (e Engine) GoToStep(ctx context.Context, id string, target int) (*domain.BrewSession, error) {
	s, err := e.loadOpen(ctx, id)
	if err != nil || s == nil {
		return nil, err
	}
	target = min(max(target, 0), len(s.Steps)-1)
	cleared, err := e.clearTimer(ctx, s)
	if err != nil || cleared == nil {
		return nil, err
	}
	if target == s.CurrentStepIndex {
		return cleared, nil
	}
	updated, err := e.UpdateSession(ctx, id, SessionPatch{CurrentStepIndex: &target})
	if err == nil && updated != nil {
		e.record(ctx, events.SessionStep, id, events.EventPayload{"from": s.CurrentStepIndex, "to": target})
	}
	return updated, err
}

// NextStep advances one step. On the last step it completes the session instead and
// the returned session is nil.
func (e Engine) NextStep(ctx context.Context, id string) (*domain.BrewSession, *CompletionResult, error) {
	s, err := e.loadOpen(ctx, id)
	if err != nil || s == nil {
		return nil, nil, err
	}
	if s.CurrentStepIndex >= len(s.Steps)-1 {
		res, err := e.CompleteSession(ctx, id)
		return nil, res, err
	}
	updated, err := e.GoToStep(ctx, id, s.CurrentStepIndex+1)
	return updated, nil, err
}

func (e Engine) PreviousStep(ctx context.Context, id string) (*domain.BrewSession, error) {
	s, err := e.loadOpen(ctx, id)
	if err != nil || s == nil {
		return nil, err
	}
	return e.GoToStep(ctx, id, s.CurrentStepIndex-1)
}

// CompleteStep marks stepID completed and moves to the step after it, stopping the timer.
func (e Engine) CompleteStep(ctx context.Context, id, stepID string) (*domain.BrewSession, error) {
	s, err := e.loadOpen(ctx, id)
	if err != nil || s == nil {
		return nil, err
	}
	idx := slices.IndexFunc(s.Steps, func(st domain.BrewStep) bool { return st.ID == stepID })
	if idx < 0 {
		return nil, nil
	}
	steps := markCompleted(s.Steps, idx, e.now())
	next := min(idx+1, len(steps)-1)
	e.cancelNotification(ctx, id, s.CurrentStepNotificationID)
	updated, err := e.UpdateSession(ctx, id, SessionPatch{Steps: steps, CurrentStepIndex: &next, ClearTimer: true})
	if err == nil && updated != nil {
		e.record(ctx, events.SessionStepDone, id, events.EventPayload{"step_id": stepID})
	}
	return updated, err
}

func markCompleted(steps []domain.BrewStep, idx int, at time.Time) []domain.BrewStep {
	out := slices.Clone(steps)
	out[idx].Completed = true
	out[idx].CompletedAt = &at
	return out
}

// CompleteSession stops the timer and ends the session. With a tracker available the
// session is kept as completed and a brew record takes over, carrying its notes;
// otherwise the session is discarded. Completing it again returns nil.
func (e Engine) CompleteSession(ctx context.Context, id string) (*CompletionResult, error) {
	s, err := e.load(ctx, id)
	if err != nil || s == nil {
		return nil, err
	}
	// already handed off
	if s.Status == domain.SessionCompleted {
		return nil, nil
	}
	e.cancelNotification(ctx, id, s.CurrentStepNotificationID)
	if e.Scheduler != nil {
		e.swallow("cancel step notifications", e.Scheduler.CancelMatching(ctx, notify.StepAlertsFor(id)), "session_id", id)
	}

	if !e.handoff() {
		if err := e.Sessions.Remove(ctx, id); err != nil && !errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("discard session %s: %w", id, err)
		}
		e.record(ctx, events.SessionDiscarded, id, events.EventPayload{"recipe_name": s.RecipeName})
		return &CompletionResult{
			Discarded: true,
			Message:   "Brew day complete! Your beer is ready for fermentation.",
		}, nil
	}

	status := domain.SessionCompleted
	now := e.now()
	completed, err := e.UpdateSession(ctx, id, SessionPatch{Status: &status, CompletedAt: &now, ClearTimer: true})
	if err != nil {
		return nil, err
	}
	if completed == nil {
		return nil, nil
	}
	e.record(ctx, events.SessionCompleted, id, events.EventPayload{"recipe_name": s.RecipeName})

	res := &CompletionResult{Session: completed}
	record, err := e.handOff(ctx, *completed)
	if err != nil {
		e.swallow("hand off session", err, "session_id", id)
		res.HandoffErr = err
		res.Message = "Brew day complete, but fermentation tracking could not be started. Start it from the brews list."
		return res, nil
	}
	res.Record = record
	res.Message = fmt.Sprintf("Brew day complete! Tracking %s from here.", s.RecipeName)
	return res, nil
}

func (e Engine) handOff(ctx context.Context, s domain.BrewSession) (*domain.BrewRecord, error) {
	opts := NewBrewOptions{RecipeName: s.RecipeName, SessionID: &s.ID}
	if s.RecipeID != "" {
		recipeID := s.RecipeID
		opts.RecipeID = &recipeID
		if recipe, err := e.Recipes.Get(ctx, recipeID); err == nil && recipe.BatchSize > 0 {
			size := recipe.BatchSize
			opts.BatchSize = &size
		}
	}
	record, err := e.Tracker.StartNewBrew(ctx, opts)
	if err != nil {
		return nil, err
	}
	for _, note := range s.Notes {
		updated, err := e.Tracker.AddQuickNote(ctx, record.ID, note)
		if err != nil {
			return &record, fmt.Errorf("copy note to brew %s: %w", record.ID, err)
		}
		if updated != nil {
			record = *updated
		}
	}
	return &record, nil
}

// AddStepTask appends a checklist item to the current step and remembers its text
// for future sessions.
func (e Engine) AddStepTask(ctx context.Context, id, text string) (*domain.BrewSession, error) {
	s, err := e.loadOpen(ctx, id)
	if err != nil || s == nil {
		return nil, err
	}
	step, ok := s.CurrentStep()
	if !ok {
		return nil, nil
	}
	steps := slices.Clone(s.Steps)
	steps[s.CurrentStepIndex].Tasks = append(slices.Clone(step.Tasks), domain.BrewStepTask{ID: uuid.NewString(), Text: text})
	updated, err := e.UpdateSession(ctx, id, SessionPatch{Steps: steps})
	if err != nil || updated == nil {
		return updated, err
	}
	e.swallow("save task template", e.Templates.Add(ctx, step.ID, text), "session_id", id, "step_id", step.ID)
	return updated, nil
}

// ToggleStepTask flips a checklist item of the current step.
func (e Engine) ToggleStepTask(ctx context.Context, id, taskID string) (*domain.BrewSession, error) {
	s, err := e.loadOpen(ctx, id)
	if err != nil || s == nil {
		return nil, err
	}
	step, ok := s.CurrentStep()
	if !ok {
		return nil, nil
	}
	idx := slices.IndexFunc(step.Tasks, func(t domain.BrewStepTask) bool { return t.ID == taskID })
	if idx < 0 {
		return nil, nil
	}
	steps := slices.Clone(s.Steps)
	tasks := slices.Clone(step.Tasks)
	tasks[idx].Completed = !tasks[idx].Completed
	steps[s.CurrentStepIndex].Tasks = tasks
	return e.UpdateSession(ctx, id, SessionPatch{Steps: steps})
}

// RemoveStepTask deletes a checklist item of the current step and forgets its text.
func (e Engine) RemoveStepTask(ctx context.Context, id, taskID string) (*domain.BrewSession, error) {
	s, err := e.loadOpen(ctx, id)
	if err != nil || s == nil {
		return nil, err
	}
	step, ok := s.CurrentStep()
	if !ok {
		return nil, nil
	}
	idx := slices.IndexFunc(step.Tasks, func(t domain.BrewStepTask) bool { return t.ID == taskID })
	if idx < 0 {
		return nil, nil
	}
	text := step.Tasks[idx].Text
	steps := slices.Clone(s.Steps)
	steps[s.CurrentStepIndex].Tasks = slices.Delete(slices.Clone(step.Tasks), idx, idx+1)
	updated, err := e.UpdateSession(ctx, id, SessionPatch{Steps: steps})
	if err != nil || updated == nil {
		return updated, err
	}
	e.swallow("remove task template", e.Templates.Remove(ctx, step.ID, text), "session_id", id, "step_id", step.ID)
	return updated, nil
}

// AddNote appends a timestamp-prefixed note.
func (e Engine) AddNote(ctx context.Context, id, text string) (*domain.BrewSession, error) {
	s, err := e.load(ctx, id)
	if err != nil || s == nil {
		return nil, err
	}
	notes := append(slices.Clone(s.Notes), e.now().Format(noteTimeLayout)+": "+text)
	return e.UpdateSession(ctx, id, SessionPatch{Notes: notes})
}

// AddMeasurement records a reading. OG and FG readings update the session's actual
// gravities and, once both are known, its ABV.
func (e Engine) AddMeasurement(ctx context.Context, id string, in MeasurementInput) (*domain.BrewSession, error) {
	s, err := e.load(ctx, id)
	if err != nil || s == nil {
		return nil, err
	}
	m := newMeasurement(in, e.now())
	patch := SessionPatch{Measurements: append(slices.Clone(s.Measurements), m)}
	switch m.Type {
	case domain.MeasurementOG:
		patch.ActualOG = &m.Value
	case domain.MeasurementFG:
		patch.ActualFG = &m.Value
		if s.ActualOG != nil {
			abv := roundTo(abvFrom(*s.ActualOG, m.Value), 2)
			patch.ActualABV = &abv
		}
	}
	return e.UpdateSession(ctx, id, patch)
}

func newMeasurement(in MeasurementInput, at time.Time) domain.Measurement {
	return domain.Measurement{
		ID:        uuid.NewString(),
		Type:      in.Type,
		Value:     in.Value,
		Unit:      in.Unit,
		Timestamp: at,
		Notes:     in.Notes,
	}
}

func abvFrom(og, fg float64) float64 {
	return (og - fg) * 131.25
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// StepLabel renders "3/10 Mash In" for display.
func StepLabel(s domain.BrewSession) string {
	step, ok := s.CurrentStep()
	if !ok {
		return "-"
	}
	return strconv.Itoa(s.CurrentStepIndex+1) + "/" + strconv.Itoa(len(s.Steps)) + " " + step.Name
}
