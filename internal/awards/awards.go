// Package awards computes the simple threshold awards shown on a user's
// profile. Awards are derived from counters on every read; nothing is
// stored.
package awards

import (
	"context"

	"wayfare/api/internal/store"
)

type Award struct {
	Code        string `json:"code"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Earned      bool   `json:"earned"`
	Progress    int    `json:"progress"`
	Threshold   int    `json:"threshold"`
}

type threshold struct {
	code        string
	title       string
	description string
	count       func(store.AwardCounts) int
	target      int
}

var thresholds = []threshold{
	{"first_steps", "First Steps", "Check in somewhere for the first time", func(c store.AwardCounts) int { return c.CheckIns }, 1},
	{"globetrotter", "Globetrotter", "Check in 10 times", func(c store.AwardCounts) int { return c.CheckIns }, 10},
	{"pathfinder", "Pathfinder", "Visit 5 distinct places", func(c store.AwardCounts) int { return c.Places }, 5},
	{"trip_starter", "Trip Starter", "Join your first travel", func(c store.AwardCounts) int { return c.Travels }, 1},
	{"frequent_flyer", "Frequent Flyer", "Be part of 5 travels", func(c store.AwardCounts) int { return c.Travels }, 5},
	{"critic", "Critic", "Write your first place review", func(c store.AwardCounts) int { return c.Reviews }, 1},
	{"local_expert", "Local Expert", "Write 10 place reviews", func(c store.AwardCounts) int { return c.Reviews }, 10},
}

type CountReader interface {
	AwardCountsForUser(ctx context.Context, userID string) (store.AwardCounts, error)
}

type Service struct {
	store CountReader
}

func NewService(store CountReader) *Service {
	return &Service{store: store}
}

// ForUser evaluates every threshold against the user's counters.
func (s *Service) ForUser(ctx context.Context, userID string) ([]Award, error) {
	counts, err := s.store.AwardCountsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return Evaluate(counts), nil
}

// Evaluate is the pure threshold check, split out for tests.
func Evaluate(counts store.AwardCounts) []Award {
	items := make([]Award, 0, len(thresholds))
	for _, t := range thresholds {
		progress := t.count(counts)
		if progress > t.target {
			progress = t.target
		}
		items = append(items, Award{
			Code:        t.code,
			Title:       t.title,
			Description: t.description,
			Earned:      progress >= t.target,
			Progress:    progress,
			Threshold:   t.target,
		})
	}
	return items
}
