package engine

import (
	"time"

	"brewline/internal/domain"
)

const day = 24 * time.Hour

// daysBetween counts whole days from start to end, never negative.
func daysBetween(start *time.Time, end time.Time) int {
	if start == nil {
		return 0
	}
	return max(0, int(end.Sub(*start)/day))
}

func fermentationStart(b domain.BrewRecord) *time.Time {
	if b.FermentationStart != nil {
		return b.FermentationStart
	}
	brewDate := b.BrewDate
	return &brewDate
}

// FermentationDay is the number of whole days since fermentation started, or since
// the brew date when no start was stamped. Always 0 while still brewing.
func FermentationDay(b domain.BrewRecord, now time.Time) int {
	if b.Status == domain.BrewBrewing {
		return 0
	}
	return daysBetween(fermentationStart(b), now)
}

// BrewProgress maps a record onto 0..100: 5 once brewed, up to 50 more through
// fermentation and the last 45 through conditioning. Each stage is capped at its
// share however long it overruns.
func BrewProgress(b domain.BrewRecord, now time.Time) float64 {
	switch b.Status {
	case domain.BrewCompleted, domain.BrewArchived:
		return 100
	case domain.BrewBrewing:
		return 5
	case domain.BrewFermenting:
		days := float64(daysBetween(fermentationStart(b), now))
		return 5 + min(50, days/float64(targetOrOne(b.TargetFermentationDays))*50)
	case domain.BrewConditioning:
		days := float64(daysBetween(b.ConditioningStart, now))
		return 55 + min(45, days/float64(targetOrOne(b.TargetConditioningDays))*45)
	}
	return 0
}

func targetOrOne(days int) int {
	if days <= 0 {
		return 1
	}
	return days
}

// EstimatedCompletion projects the end of conditioning from the planned stage lengths.
// It ignores how the batch is actually progressing.
func EstimatedCompletion(b domain.BrewRecord) time.Time {
	return fermentationStart(b).AddDate(0, 0, b.TargetFermentationDays+b.TargetConditioningDays)
}

// BrewView is a record with its derived progress fields.
type BrewView struct {
	domain.BrewRecord
	FermentationDay     int       `json:"fermentation_day"`
	Progress            float64   `json:"progress"`
	EstimatedCompletion time.Time `json:"estimated_completion"`
}

func NewBrewView(b domain.BrewRecord, now time.Time) BrewView {
	return BrewView{
		BrewRecord:          b,
		FermentationDay:     FermentationDay(b, now),
		Progress:            BrewProgress(b, now),
		EstimatedCompletion: EstimatedCompletion(b),
	}
}
