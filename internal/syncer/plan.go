package syncer

import (
	"fmt"
	"time"

	"cinelex/internal/catalog/tmdb"
	"cinelex/internal/services"
)

// YearPlan is one job of a range request.
type YearPlan struct {
	Year       int
	MaxResults int
	Priority   int
}

// PlanRange splits maxResults across start..end, newest year first. Each year
// receives floor(total/n) with a floor of one; the start year also absorbs
// the remainder. Priority grows with distance from the current year so
// recent years dispatch first. A zero maxResults leaves every year unlimited.
func PlanRange(start, end, maxResults, basePriority int, now time.Time) []YearPlan {
	if end < start {
		return nil
	}
	years := end - start + 1
	perYear := 0
	if maxResults > 0 {
		perYear = max(1, maxResults/years)
	}
	current := now.Year()

	plans := make([]YearPlan, 0, years)
	for year := end; year >= start; year-- {
		budget := perYear
		if maxResults > 0 && year == start {
			budget = max(maxResults-perYear*(years-1), perYear)
		}
		plans = append(plans, YearPlan{
			Year:       year,
			MaxResults: budget,
			Priority:   basePriority + max(0, current-year),
		})
	}
	return plans
}

// JobKey names the logical sync a job belongs to.
func JobKey(year int, language string) string {
	return fmt.Sprintf("year_sync_%d_%s", year, language)
}

func validateRange(start, end int, now time.Time) error {
	if err := tmdb.ValidateYear(start, now); err != nil {
		return err
	}
	if err := tmdb.ValidateYear(end, now); err != nil {
		return err
	}
	if end < start {
		return fmt.Errorf("%w: end year %d precedes start year %d", services.ErrValidation, end, start)
	}
	return nil
}

// RetryDue reports whether a failed job has waited 2^attempts minutes since
// its last attempt.
func RetryDue(lastAttempt *time.Time, attempts int, now time.Time) bool {
	if lastAttempt == nil {
		return true
	}
	if attempts < 0 {
		attempts = 0
	}
	wait := time.Duration(1<<min(attempts, 30)) * time.Minute
	return !now.Before(lastAttempt.Add(wait))
}
