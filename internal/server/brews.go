package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"brewline/internal/app"
	"brewline/internal/domain"
	"brewline/internal/engine"
)

type brewPath struct {
	ID string `path:"id"`
}

func (h handlers) brewReply(b *domain.BrewRecord, err error, id string) (*bodyOut[engine.BrewView], error) {
	if err != nil {
		return nil, handleError(err)
	}
	if b == nil {
		return nil, notFound("brew", id)
	}
	return reply(h.tracker.View(*b)), nil
}

func (h handlers) registerBrews(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-brews",
		Method:      http.MethodGet,
		Path:        "/brews",
		Summary:     "List tracked batches, split into active and archived",
	}, func(ctx context.Context, _ *struct{}) (*bodyOut[BrewListResponse], error) {
		active, archived, err := h.tracker.ListBrews(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(BrewListResponse{
			Active:   brewViews(h.tracker, active),
			Archived: brewViews(h.tracker, archived),
		}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "start-brew",
		Method:        http.MethodPost,
		Path:          "/brews",
		Summary:       "Start tracking a batch without a brew session",
		DefaultStatus: http.StatusCreated,
		Errors:        sessionErrors,
	}, func(ctx context.Context, input *struct {
		Body StartBrewRequest `json:"body"`
	}) (*bodyOut[engine.BrewView], error) {
		name, err := app.CleanText(input.Body.RecipeName)
		if err != nil {
			return nil, handleError(err)
		}
		b, err := h.tracker.StartNewBrew(ctx, engine.NewBrewOptions{
			RecipeID:               input.Body.RecipeID,
			RecipeName:             name,
			BatchSize:              input.Body.BatchSize,
			TargetFermentationDays: input.Body.TargetFermentationDays,
			TargetConditioningDays: input.Body.TargetConditioningDays,
			FermentationTemp:       input.Body.FermentationTemp,
			Notes:                  input.Body.Notes,
		})
		return h.brewReply(&b, err, "")
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-brew",
		Method:      http.MethodGet,
		Path:        "/brews/{id}",
		Summary:     "Get a batch with its progress",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *brewPath) (*bodyOut[engine.BrewView], error) {
		b, err := h.tracker.GetBrew(ctx, input.ID)
		return h.brewReply(b, err, input.ID)
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-brew",
		Method:      http.MethodDelete,
		Path:        "/brews/{id}",
		Summary:     "Delete a batch and cancel its reminders",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *brewPath) (*bodyOut[DeleteResponse], error) {
		deleted, err := h.tracker.DeleteBrew(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if !deleted {
			return nil, notFound("brew", input.ID)
		}
		return reply(DeleteResponse{Deleted: true}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "start-fermentation",
		Method:      http.MethodPost,
		Path:        "/brews/{id}/fermentation",
		Summary:     "Pitch yeast: record OG and start the fermentation clock",
		Errors:      sessionErrors,
	}, func(ctx context.Context, input *struct {
		ID   string                   `path:"id"`
		Body StartFermentationRequest `json:"body"`
	}) (*bodyOut[engine.BrewView], error) {
		og, err := app.Gravity(input.Body.OriginalGravity)
		if err != nil {
			return nil, handleError(err)
		}
		days, err := app.TargetDays(input.Body.TargetDays)
		if err != nil {
			return nil, handleError(err)
		}
		b, err := h.tracker.StartFermentation(ctx, input.ID, og, input.Body.Temperature, days)
		return h.brewReply(b, err, input.ID)
	})

	huma.Register(api, huma.Operation{
		OperationID: "start-conditioning",
		Method:      http.MethodPost,
		Path:        "/brews/{id}/conditioning",
		Summary:     "Record FG and start conditioning",
		Errors:      sessionErrors,
	}, func(ctx context.Context, input *struct {
		ID   string                   `path:"id"`
		Body StartConditioningRequest `json:"body"`
	}) (*bodyOut[engine.BrewView], error) {
		fg, err := app.Gravity(input.Body.FinalGravity)
		if err != nil {
			return nil, handleError(err)
		}
		days, err := app.TargetDays(input.Body.TargetDays)
		if err != nil {
			return nil, handleError(err)
		}
		b, err := h.tracker.StartConditioning(ctx, input.ID, fg, days)
		return h.brewReply(b, err, input.ID)
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-brew",
		Method:      http.MethodPost,
		Path:        "/brews/{id}/complete",
		Summary:     "Package the batch",
		Errors:      sessionErrors,
	}, func(ctx context.Context, input *brewPath) (*bodyOut[engine.BrewView], error) {
		b, err := h.tracker.CompleteBrew(ctx, input.ID)
		return h.brewReply(b, err, input.ID)
	})

	huma.Register(api, huma.Operation{
		OperationID: "archive-brew",
		Method:      http.MethodPost,
		Path:        "/brews/{id}/archive",
		Summary:     "Archive a completed batch",
		Errors:      sessionErrors,
	}, func(ctx context.Context, input *brewPath) (*bodyOut[engine.BrewView], error) {
		b, err := h.tracker.ArchiveBrew(ctx, input.ID)
		return h.brewReply(b, err, input.ID)
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-brew-note",
		Method:      http.MethodPost,
		Path:        "/brews/{id}/notes",
		Summary:     "Add a quick note",
		Errors:      sessionErrors,
	}, func(ctx context.Context, input *struct {
		ID   string      `path:"id"`
		Body TextRequest `json:"body"`
	}) (*bodyOut[engine.BrewView], error) {
		text, err := app.CleanText(input.Body.Text)
		if err != nil {
			return nil, handleError(err)
		}
		b, err := h.tracker.AddQuickNote(ctx, input.ID, text)
		return h.brewReply(b, err, input.ID)
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-brew-measurement",
		Method:      http.MethodPost,
		Path:        "/brews/{id}/measurements",
		Summary:     "Record a reading against the batch",
		Errors:      sessionErrors,
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body MeasurementRequest `json:"body"`
	}) (*bodyOut[engine.BrewView], error) {
		m, err := app.MeasurementInput(input.Body).Measurement()
		if err != nil {
			return nil, handleError(err)
		}
		b, err := h.tracker.AddMeasurement(ctx, input.ID, m)
		return h.brewReply(b, err, input.ID)
	})
}

func (h handlers) registerEvents(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Latest lifecycle events, newest first",
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit"`
	}) (*bodyOut[EventListResponse], error) {
		items, err := h.repo.LatestEvents(ctx, normalizeLimit(input.Limit), input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		out := EventListResponse{Items: make([]EventResponse, 0, len(items))}
		for _, e := range items {
			out.Items = append(out.Items, eventResponse(e))
		}
		return reply(out), nil
	})
}
