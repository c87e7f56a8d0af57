package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"brewline/internal/app"
	"brewline/internal/domain"
	"brewline/internal/engine"
)

type bodyOut[T any] struct {
	Body T `json:"body"`
}

func reply[T any](v T) *bodyOut[T] { return &bodyOut[T]{Body: v} }

type sessionPath struct {
	ID string `path:"id"`
}

var sessionErrors = []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity, http.StatusInternalServerError}

func sessionReply(s *domain.BrewSession, err error, id string) (*bodyOut[domain.BrewSession], error) {
	if err != nil {
		return nil, handleError(err)
	}
	if s == nil {
		return nil, notFound("session", id)
	}
	return reply(*s), nil
}

func (h handlers) registerRecipes(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-recipes",
		Method:      http.MethodGet,
		Path:        "/recipes",
		Summary:     "List recipes",
	}, func(ctx context.Context, _ *struct{}) (*bodyOut[[]domain.Recipe], error) {
		recipes, err := h.engine.Recipes.List(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if recipes == nil {
			recipes = []domain.Recipe{}
		}
		return reply(recipes), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-recipe",
		Method:        http.MethodPost,
		Path:          "/recipes",
		Summary:       "Create or replace a recipe",
		DefaultStatus: http.StatusCreated,
		Errors:        sessionErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateRecipeRequest `json:"body"`
	}) (*bodyOut[domain.Recipe], error) {
		in := app.RecipeInput(input.Body)
		if err := in.Validate(); err != nil {
			return nil, handleError(err)
		}
		recipe := in.Recipe()
		if recipe.ID == "" {
			recipe.ID = uuid.NewString()
		}
		now := time.Now()
		recipe.CreatedAt, recipe.UpdatedAt = now, now
		if existing, err := h.engine.Recipes.Get(ctx, recipe.ID); err == nil {
			recipe.CreatedAt = existing.CreatedAt
		}
		if err := h.engine.Recipes.Put(ctx, recipe); err != nil {
			return nil, handleError(err)
		}
		return reply(recipe), nil
	})
}

func (h handlers) registerSessions(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/sessions",
		Summary:     "List brew sessions",
	}, func(ctx context.Context, _ *struct{}) (*bodyOut[[]domain.BrewSession], error) {
		sessions, err := h.engine.ListSessions(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if sessions == nil {
			sessions = []domain.BrewSession{}
		}
		return reply(sessions), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "start-session",
		Method:        http.MethodPost,
		Path:          "/sessions",
		Summary:       "Start a brew session for a stored recipe",
		DefaultStatus: http.StatusCreated,
		Errors:        sessionErrors,
	}, func(ctx context.Context, input *struct {
		Body StartSessionRequest `json:"body"`
	}) (*bodyOut[domain.BrewSession], error) {
		s, err := h.engine.StartSessionForRecipe(ctx, input.Body.RecipeID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "active-session",
		Method:      http.MethodGet,
		Path:        "/sessions/active",
		Summary:     "The session currently brewing or fermenting",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*bodyOut[domain.BrewSession], error) {
		s, err := h.engine.ActiveSession(ctx)
		return sessionReply(s, err, "active")
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}",
		Summary:     "Get a brew session",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *sessionPath) (*bodyOut[domain.BrewSession], error) {
		s, err := h.engine.GetSession(ctx, input.ID)
		return sessionReply(s, err, input.ID)
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-session-status",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/status",
		Summary:     "Move a session forward to a later status",
		Errors:      sessionErrors,
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body SetStatusRequest `json:"body"`
	}) (*bodyOut[domain.BrewSession], error) {
		s, err := h.engine.SetStatus(ctx, input.ID, domain.SessionStatus(input.Body.Status))
		return sessionReply(s, err, input.ID)
	})

	huma.Register(api, huma.Operation{
		OperationID: "goto-step",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/goto",
		Summary:     "Jump to a step; the timer stops",
		Errors:      sessionErrors,
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body GoToStepRequest `json:"body"`
	}) (*bodyOut[domain.BrewSession], error) {
		s, err := h.engine.GoToStep(ctx, input.ID, input.Body.Index)
		return sessionReply(s, err, input.ID)
	})

	huma.Register(api, huma.Operation{
		OperationID: "next-step",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/next",
		Summary:     "Advance one step, completing the session after the last one",
		Errors:      sessionErrors,
	}, func(ctx context.Context, input *sessionPath) (*bodyOut[StepResponse], error) {
		s, done, err := h.engine.NextStep(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if s == nil && done == nil {
			return nil, notFound("session", input.ID)
		}
		return reply(StepResponse{Session: s, Completion: completionResponse(done, h.tracker)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "previous-step",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/previous",
		Summary:     "Go back one step",
		Errors:      sessionErrors,
	}, func(ctx context.Context, input *sessionPath) (*bodyOut[domain.BrewSession], error) {
		s, err := h.engine.PreviousStep(ctx, input.ID)
		return sessionReply(s, err, input.ID)
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-step",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/steps/{step_id}/complete",
		Summary:     "Mark a step completed and move past it",
		Errors:      sessionErrors,
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id"`
		StepID string `path:"step_id"`
	}) (*bodyOut[domain.BrewSession], error) {
		s, err := h.engine.CompleteStep(ctx, input.ID, input.StepID)
		return sessionReply(s, err, input.ID)
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-session",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/complete",
		Summary:     "Finish brew day and hand the batch to the tracker",
		Errors:      sessionErrors,
	}, func(ctx context.Context, input *sessionPath) (*bodyOut[CompletionResponse], error) {
		res, err := h.engine.CompleteSession(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if res == nil {
			return nil, notFound("session", input.ID)
		}
		return reply(*completionResponse(res, h.tracker)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-session-note",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/notes",
		Summary:     "Append a timestamped note",
		Errors:      sessionErrors,
	}, func(ctx context.Context, input *struct {
		ID   string      `path:"id"`
		Body TextRequest `json:"body"`
	}) (*bodyOut[domain.BrewSession], error) {
		text, err := app.CleanText(input.Body.Text)
		if err != nil {
			return nil, handleError(err)
		}
		s, err := h.engine.AddNote(ctx, input.ID, text)
		return sessionReply(s, err, input.ID)
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-session-measurement",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/measurements",
		Summary:     "Record a reading",
		Errors:      sessionErrors,
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body MeasurementRequest `json:"body"`
	}) (*bodyOut[domain.BrewSession], error) {
		m, err := app.MeasurementInput(input.Body).Measurement()
		if err != nil {
			return nil, handleError(err)
		}
		s, err := h.engine.AddMeasurement(ctx, input.ID, m)
		return sessionReply(s, err, input.ID)
	})
}

func (h handlers) registerTasks(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-step-task",
		Method:        http.MethodPost,
		Path:          "/sessions/{id}/tasks",
		Summary:       "Add a checklist item to the current step",
		DefaultStatus: http.StatusCreated,
		Errors:        sessionErrors,
	}, func(ctx context.Context, input *struct {
		ID   string      `path:"id"`
		Body TextRequest `json:"body"`
	}) (*bodyOut[domain.BrewSession], error) {
		text, err := app.CleanText(input.Body.Text)
		if err != nil {
			return nil, handleError(err)
		}
		s, err := h.engine.AddStepTask(ctx, input.ID, text)
		return sessionReply(s, err, input.ID)
	})

	type taskPath struct {
		ID     string `path:"id"`
		TaskID string `path:"task_id"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "toggle-step-task",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/tasks/{task_id}/toggle",
		Summary:     "Toggle a checklist item of the current step",
		Errors:      sessionErrors,
	}, func(ctx context.Context, input *taskPath) (*bodyOut[domain.BrewSession], error) {
		s, err := h.engine.ToggleStepTask(ctx, input.ID, input.TaskID)
		return sessionReply(s, err, input.ID)
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-step-task",
		Method:      http.MethodDelete,
		Path:        "/sessions/{id}/tasks/{task_id}",
		Summary:     "Remove a checklist item of the current step",
		Errors:      sessionErrors,
	}, func(ctx context.Context, input *taskPath) (*bodyOut[domain.BrewSession], error) {
		s, err := h.engine.RemoveStepTask(ctx, input.ID, input.TaskID)
		return sessionReply(s, err, input.ID)
	})
}

func (h handlers) registerTimers(api huma.API) {
	timerReply := func(st *engine.TimerState, err error, id string) (*bodyOut[engine.TimerState], error) {
		if err != nil {
			return nil, handleError(err)
		}
		if st == nil {
			return nil, notFound("session", id)
		}
		return reply(*st), nil
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-timer",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}/timer",
		Summary:     "Remaining time of the current step",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *sessionPath) (*bodyOut[engine.TimerState], error) {
		st, err := h.engine.TimerStatus(ctx, input.ID)
		return timerReply(st, err, input.ID)
	})

	huma.Register(api, huma.Operation{
		OperationID: "start-timer",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/timer/start",
		Summary:     "Start the current step's countdown",
		Errors:      sessionErrors,
	}, func(ctx context.Context, input *struct {
		ID   string       `path:"id"`
		Body TimerRequest `json:"body"`
	}) (*bodyOut[engine.TimerState], error) {
		secs, err := app.TimerSeconds(input.Body.Seconds)
		if err != nil {
			return nil, handleError(err)
		}
		st, err := h.engine.StartStepTimer(ctx, input.ID, secs)
		return timerReply(st, err, input.ID)
	})

	huma.Register(api, huma.Operation{
		OperationID: "pause-timer",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/timer/pause",
		Summary:     "Pause the countdown; the response carries the seconds to resume from",
		Errors:      sessionErrors,
	}, func(ctx context.Context, input *sessionPath) (*bodyOut[engine.TimerState], error) {
		st, err := h.engine.PauseStepTimer(ctx, input.ID)
		return timerReply(st, err, input.ID)
	})

	huma.Register(api, huma.Operation{
		OperationID: "resume-timer",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/timer/resume",
		Summary:     "Resume the countdown with the remaining seconds",
		Errors:      sessionErrors,
	}, func(ctx context.Context, input *struct {
		ID   string       `path:"id"`
		Body TimerRequest `json:"body"`
	}) (*bodyOut[engine.TimerState], error) {
		secs, err := app.TimerSeconds(input.Body.Seconds)
		if err != nil {
			return nil, handleError(err)
		}
		st, err := h.engine.ResumeStepTimer(ctx, input.ID, secs)
		return timerReply(st, err, input.ID)
	})

	huma.Register(api, huma.Operation{
		OperationID: "clear-timer",
		Method:      http.MethodDelete,
		Path:        "/sessions/{id}/timer",
		Summary:     "Clear the countdown",
		Errors:      sessionErrors,
	}, func(ctx context.Context, input *sessionPath) (*bodyOut[engine.TimerState], error) {
		st, err := h.engine.ClearStepTimer(ctx, input.ID)
		return timerReply(st, err, input.ID)
	})

	huma.Register(api, huma.Operation{
		OperationID: "tick-timer",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/timer/tick",
		Summary:     "Observe the countdown, completing the step when it has run out",
		Errors:      sessionErrors,
	}, func(ctx context.Context, input *sessionPath) (*bodyOut[TickResponse], error) {
		var resp TickResponse
		obs := engine.Observer{
			Engine:        h.engine,
			SessionID:     input.ID,
			OnStepElapsed: func(s domain.BrewSession) { resp.StepElapsed = &s },
		}
		st, err := obs.Tick(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if st == nil {
			return nil, notFound("session", input.ID)
		}
		resp.Timer = st
		return reply(resp), nil
	})
}
