package repo

import (
	"context"
	"slices"

	"brewline/internal/domain"
	"brewline/internal/kv"
)

// Sessions persists brew-day sessions as one JSON array under kv.KeySessions.
type Sessions struct {
	Store kv.Store
}

func (s Sessions) List(ctx context.Context) ([]domain.BrewSession, error) {
	var sessions []domain.BrewSession
	if err := loadJSON(ctx, s.Store, kv.KeySessions, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s Sessions) Get(ctx context.Context, id string) (domain.BrewSession, error) {
	sessions, err := s.List(ctx)
	if err != nil {
		return domain.BrewSession{}, err
	}
	for _, sess := range sessions {
		if sess.ID == id {
			return sess, nil
		}
	}
	return domain.BrewSession{}, ErrNotFound
}

// Active returns the in-progress session, or ErrNotFound when none is.
// Computed from the collection on every call; nothing caches it.
func (s Sessions) Active(ctx context.Context) (domain.BrewSession, error) {
	sessions, err := s.List(ctx)
	if err != nil {
		return domain.BrewSession{}, err
	}
	for _, sess := range sessions {
		if sess.Status.Active() {
			return sess, nil
		}
	}
	return domain.BrewSession{}, ErrNotFound
}

// Put inserts or replaces a session, keeping collection order.
func (s Sessions) Put(ctx context.Context, session domain.BrewSession) error {
	sessions, err := s.List(ctx)
	if err != nil {
		return err
	}
	idx := slices.IndexFunc(sessions, func(x domain.BrewSession) bool { return x.ID == session.ID })
	if idx >= 0 {
		sessions[idx] = session
	} else {
		sessions = append(sessions, session)
	}
	return saveJSON(ctx, s.Store, kv.KeySessions, sessions)
}

func (s Sessions) Remove(ctx context.Context, id string) error {
	sessions, err := s.List(ctx)
	if err != nil {
		return err
	}
	idx := slices.IndexFunc(sessions, func(x domain.BrewSession) bool { return x.ID == id })
	if idx < 0 {
		return ErrNotFound
	}
	sessions = slices.Delete(sessions, idx, idx+1)
	return saveJSON(ctx, s.Store, kv.KeySessions, sessions)
}

// TaskTemplates persists per-step-id checklist texts under kv.KeyStepTaskTemplates.
type TaskTemplates struct {
	Store kv.Store
}

func (t TaskTemplates) Load(ctx context.Context) (domain.StepTaskTemplates, error) {
	templates := domain.StepTaskTemplates{}
	if err := loadJSON(ctx, t.Store, kv.KeyStepTaskTemplates, &templates); err != nil {
		return nil, err
	}
	if templates == nil {
		templates = domain.StepTaskTemplates{}
	}
	return templates, nil
}

// Add appends text to the step's template unless it is already there.
func (t TaskTemplates) Add(ctx context.Context, stepID, text string) error {
	templates, err := t.Load(ctx)
	if err != nil {
		return err
	}
	if slices.Contains(templates[stepID], text) {
		return nil
	}
	templates[stepID] = append(templates[stepID], text)
	return saveJSON(ctx, t.Store, kv.KeyStepTaskTemplates, templates)
}

// Remove drops every occurrence of text from the step's template.
func (t TaskTemplates) Remove(ctx context.Context, stepID, text string) error {
	templates, err := t.Load(ctx)
	if err != nil {
		return err
	}
	texts := templates[stepID]
	kept := slices.DeleteFunc(slices.Clone(texts), func(s string) bool { return s == text })
	if len(kept) == len(texts) {
		return nil
	}
	if len(kept) == 0 {
		delete(templates, stepID)
	} else {
		templates[stepID] = kept
	}
	return saveJSON(ctx, t.Store, kv.KeyStepTaskTemplates, templates)
}

// Recipes persists recipes as one JSON array under kv.KeyRecipes.
type Recipes struct {
	Store kv.Store
}

func (r Recipes) List(ctx context.Context) ([]domain.Recipe, error) {
	var recipes []domain.Recipe
	if err := loadJSON(ctx, r.Store, kv.KeyRecipes, &recipes); err != nil {
		return nil, err
	}
	return recipes, nil
}

func (r Recipes) Get(ctx context.Context, id string) (domain.Recipe, error) {
	recipes, err := r.List(ctx)
	if err != nil {
		return domain.Recipe{}, err
	}
	for _, rec := range recipes {
		if rec.ID == id {
			return rec, nil
		}
	}
	return domain.Recipe{}, ErrNotFound
}

func (r Recipes) Put(ctx context.Context, recipe domain.Recipe) error {
	recipes, err := r.List(ctx)
	if err != nil {
		return err
	}
	idx := slices.IndexFunc(recipes, func(x domain.Recipe) bool { return x.ID == recipe.ID })
	if idx >= 0 {
		recipes[idx] = recipe
	} else {
		recipes = append(recipes, recipe)
	}
	return saveJSON(ctx, r.Store, kv.KeyRecipes, recipes)
}
