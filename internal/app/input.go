package app

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"brewline/internal/domain"
	"brewline/internal/engine"
)

// inputValidate checks user input before it reaches the engine, which trusts it.
var inputValidate *validator.Validate

func init() {
	inputValidate = validator.New(validator.WithRequiredStructEnabled())
	err := inputValidate.RegisterValidation("nonblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	if err != nil {
		panic(fmt.Sprintf("register nonblank validation: %v", err))
	}
}

// ValidationError lists the offending fields and their failed rules.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for f, rule := range e.Fields {
		parts = append(parts, f+" "+rule)
	}
	return "invalid input: " + strings.Join(parts, ", ")
}

func check(v any) error {
	err := inputValidate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: map[string]string{}}
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		out.Fields[strings.ToLower(fe.Field())] = rule
	}
	return out
}

type textInput struct {
	Text string `validate:"nonblank,max=500"`
}

// CleanText trims note and task text and rejects it when empty.
func CleanText(text string) (string, error) {
	in := textInput{Text: strings.TrimSpace(text)}
	if err := check(in); err != nil {
		return "", err
	}
	return in.Text, nil
}

type RecipeInput struct {
	ID        string  `validate:"omitempty,max=64"`
	Name      string  `validate:"nonblank,max=120"`
	Style     string  `validate:"max=80"`
	BatchSize float64 `validate:"gte=0,lte=10000"`
	BoilTime  int     `validate:"gte=0,lte=360"`
	OG        float64 `validate:"omitempty,gt=0.99,lt=1.2"`
	FG        float64 `validate:"omitempty,gt=0.98,lt=1.2"`
	Notes     string  `validate:"max=2000"`
}

func (r RecipeInput) Validate() error {
	return check(r)
}

// Recipe converts validated input to a domain recipe.
func (r RecipeInput) Recipe() domain.Recipe {
	return domain.Recipe{
		ID:        r.ID,
		Name:      strings.TrimSpace(r.Name),
		Style:     r.Style,
		BatchSize: r.BatchSize,
		BoilTime:  r.BoilTime,
		OG:        r.OG,
		FG:        r.FG,
		Notes:     r.Notes,
	}
}

type MeasurementInput struct {
	Type  string  `validate:"oneof=og fg temperature ph volume gravity"`
	Value float64 `validate:"gte=0"`
	Unit  string  `validate:"max=16"`
	Notes string  `validate:"max=500"`
}

// Measurement validates the reading; og, fg and gravity values must be plausible gravities.
func (m MeasurementInput) Measurement() (engine.MeasurementInput, error) {
	if err := check(m); err != nil {
		return engine.MeasurementInput{}, err
	}
	switch domain.MeasurementType(m.Type) {
	case domain.MeasurementOG, domain.MeasurementFG, domain.MeasurementGravity:
		if _, err := Gravity(m.Value); err != nil {
			return engine.MeasurementInput{}, err
		}
	}
	return engine.MeasurementInput{Type: domain.MeasurementType(m.Type), Value: m.Value, Unit: m.Unit, Notes: m.Notes}, nil
}

type gravityInput struct {
	Value float64 `validate:"gt=0.98,lt=1.2"`
}

// Gravity checks a specific gravity reading such as 1.050.
func Gravity(v float64) (float64, error) {
	if err := check(gravityInput{Value: v}); err != nil {
		return 0, fmt.Errorf("gravity %v out of range: %w", v, err)
	}
	return v, nil
}

// ParseGravity parses and checks a gravity typed by the user.
func ParseGravity(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("gravity %q is not a number", s)
	}
	return Gravity(v)
}

type secondsInput struct {
	Seconds int `validate:"gte=0,lte=86400"`
}

// TimerSeconds checks a countdown length.
func TimerSeconds(n int) (int, error) {
	if err := check(secondsInput{Seconds: n}); err != nil {
		return 0, err
	}
	return n, nil
}

type daysInput struct {
	Days int `validate:"gt=0,lte=365"`
}

// TargetDays checks an optional stage length; nil means keep the stored target.
func TargetDays(d *int) (*int, error) {
	if d == nil {
		return nil, nil
	}
	if err := check(daysInput{Days: *d}); err != nil {
		return nil, err
	}
	return d, nil
}
