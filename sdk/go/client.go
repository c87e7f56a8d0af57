package brewlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Brewline HTTP API client.
type Client struct {
	BaseURL    string
	BasePath   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

// Step is one brew-day step (partial).
type Step struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Duration  int    `json:"duration"`
	Completed bool   `json:"completed"`
	Tasks     []Task `json:"tasks"`
}

// Task is a checklist item of a step.
type Task struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// Session represents a brew day.
type Session struct {
	ID                  string   `json:"id"`
	RecipeID            string   `json:"recipe_id"`
	RecipeName          string   `json:"recipe_name"`
	Status              string   `json:"status"`
	CurrentStepIndex    int      `json:"current_step_index"`
	CurrentStepTargetTs *int64   `json:"current_step_target_ts,omitempty"`
	Steps               []Step   `json:"steps"`
	Notes               []string `json:"notes"`
	ActualABV           *float64 `json:"actual_abv,omitempty"`
}

// Timer is the current step's countdown.
type Timer struct {
	SessionID      string `json:"session_id"`
	StepIndex      int    `json:"step_index"`
	StepName       string `json:"step_name"`
	PlannedSeconds int    `json:"planned_seconds"`
	Running        bool   `json:"running"`
	Remaining      int    `json:"remaining"`
}

// Tick is the result of one timer observation.
type Tick struct {
	Timer       *Timer   `json:"timer,omitempty"`
	StepElapsed *Session `json:"step_elapsed,omitempty"`
}

// Brew represents a tracked batch with its derived progress.
type Brew struct {
	ID                     string   `json:"id"`
	RecipeName             string   `json:"recipe_name"`
	SessionID              *string  `json:"session_id,omitempty"`
	Status                 string   `json:"status"`
	BrewDate               string   `json:"brew_date"`
	OriginalGravity        *float64 `json:"original_gravity,omitempty"`
	FinalGravity           *float64 `json:"final_gravity,omitempty"`
	MeasuredABV            *float64 `json:"measured_abv,omitempty"`
	TargetFermentationDays int      `json:"target_fermentation_days"`
	TargetConditioningDays int      `json:"target_conditioning_days"`
	FermentationDay        int      `json:"fermentation_day"`
	Progress               float64  `json:"progress"`
	EstimatedCompletion    string   `json:"estimated_completion"`
}

// Completion is the outcome of finishing brew day.
type Completion struct {
	Session      *Session `json:"session,omitempty"`
	Record       *Brew    `json:"record,omitempty"`
	Discarded    bool     `json:"discarded"`
	Message      string   `json:"message"`
	HandoffError string   `json:"handoff_error,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// StartSession starts brew day for a stored recipe.
func (c *Client) StartSession(ctx context.Context, recipeID string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPost, "sessions", map[string]any{"recipe_id": recipeID}, &resp)
	return resp, err
}

// Session fetches a session by id.
func (c *Client) Session(ctx context.Context, id string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodGet, "sessions/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// NextStep advances one step. On the last step the returned completion is set.
func (c *Client) NextStep(ctx context.Context, id string) (*Session, *Completion, error) {
	var resp struct {
		Session    *Session    `json:"session"`
		Completion *Completion `json:"completion"`
	}
	err := c.do(ctx, http.MethodPost, "sessions/"+url.PathEscape(id)+"/next", nil, &resp)
	return resp.Session, resp.Completion, err
}

// CompleteSession finishes brew day.
func (c *Client) CompleteSession(ctx context.Context, id string) (Completion, error) {
	var resp Completion
	err := c.do(ctx, http.MethodPost, "sessions/"+url.PathEscape(id)+"/complete", nil, &resp)
	return resp, err
}

// StartTimer starts the current step's countdown.
func (c *Client) StartTimer(ctx context.Context, sessionID string, seconds int) (Timer, error) {
	return c.timer(ctx, sessionID, "start", map[string]any{"seconds": seconds})
}

// PauseTimer pauses the countdown; Remaining is the value to resume with.
func (c *Client) PauseTimer(ctx context.Context, sessionID string) (Timer, error) {
	return c.timer(ctx, sessionID, "pause", nil)
}

// ResumeTimer resumes the countdown.
func (c *Client) ResumeTimer(ctx context.Context, sessionID string, seconds int) (Timer, error) {
	return c.timer(ctx, sessionID, "resume", map[string]any{"seconds": seconds})
}

// TickTimer observes the countdown once.
func (c *Client) TickTimer(ctx context.Context, sessionID string) (Tick, error) {
	var resp Tick
	err := c.do(ctx, http.MethodPost, "sessions/"+url.PathEscape(sessionID)+"/timer/tick", nil, &resp)
	return resp, err
}

func (c *Client) timer(ctx context.Context, sessionID, action string, body any) (Timer, error) {
	var resp Timer
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("sessions/%s/timer/%s", url.PathEscape(sessionID), action), body, &resp)
	return resp, err
}

// Brews lists active and archived batches.
func (c *Client) Brews(ctx context.Context) (active, archived []Brew, err error) {
	var resp struct {
		Active   []Brew `json:"active"`
		Archived []Brew `json:"archived"`
	}
	err = c.do(ctx, http.MethodGet, "brews", nil, &resp)
	return resp.Active, resp.Archived, err
}

// StartFermentation records OG and starts fermentation. targetDays of 0 keeps the stored target.
func (c *Client) StartFermentation(ctx context.Context, brewID string, og float64, targetDays int) (Brew, error) {
	body := map[string]any{"original_gravity": og}
	if targetDays > 0 {
		body["target_days"] = targetDays
	}
	var resp Brew
	err := c.do(ctx, http.MethodPost, "brews/"+url.PathEscape(brewID)+"/fermentation", body, &resp)
	return resp, err
}

// StartConditioning records FG and starts conditioning.
func (c *Client) StartConditioning(ctx context.Context, brewID string, fg float64, targetDays int) (Brew, error) {
	body := map[string]any{"final_gravity": fg}
	if targetDays > 0 {
		body["target_days"] = targetDays
	}
	var resp Brew
	err := c.do(ctx, http.MethodPost, "brews/"+url.PathEscape(brewID)+"/conditioning", body, &resp)
	return resp, err
}

// Events returns recent events, optionally for one entity.
func (c *Client) Events(ctx context.Context, limit int, entityKind, entityID string) ([]Event, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if entityKind != "" {
		q.Set("entity_kind", entityKind)
	}
	if entityID != "" {
		q.Set("entity_id", entityID)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Items []Event `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}
