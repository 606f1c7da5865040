package tortoise

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/lifelonglearners/tortoise/internal/model"
)

const insightConversations = 50

// Insights summarizes a learner's recent conversations and joined challenges.
func (s *Service) Insights(ctx context.Context, userID uuid.UUID) (model.LearningInsights, error) {
	convs, err := s.store.ListConversations(ctx, userID, insightConversations)
	if err != nil {
		return model.LearningInsights{}, fmt.Errorf("tortoise: insights: %w", err)
	}
	joined, err := s.store.ListJoinedChallenges(ctx, userID, 0)
	if err != nil {
		return model.LearningInsights{}, fmt.Errorf("tortoise: insights: %w", err)
	}
	return ComputeInsights(convs, joined), nil
}

// ComputeInsights derives insights from conversations and joined challenges.
func ComputeInsights(convs []model.Conversation, joined []model.JoinedChallenge) model.LearningInsights {
	intents := make([]string, 0, len(convs))
	for _, c := range convs {
		if c.Intent != nil {
			intents = append(intents, string(*c.Intent))
		}
	}
	types := make([]string, 0, len(joined))
	for _, j := range joined {
		types = append(types, string(j.Challenge.Type))
	}

	return model.LearningInsights{
		MostDiscussedTopics:     topN(intents, 3),
		LearningFrequency:       frequency(convs),
		PreferredChallengeTypes: topN(types, 2),
		SatisfactionTrend:       satisfactionTrend(convs),
	}
}

// topN returns the n most frequent values. Ties go to the value seen first.
func topN(values []string, n int) []string {
	counts := make(map[string]int)
	var order []string
	for _, v := range values {
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}
	slices.SortStableFunc(order, func(a, b string) int {
		return cmp.Compare(counts[b], counts[a])
	})
	if len(order) > n {
		order = order[:n]
	}
	if order == nil {
		return []string{}
	}
	return order
}

// frequency buckets conversations per day across the span they cover,
// counting any span shorter than a day as one day.
func frequency(convs []model.Conversation) string {
	if len(convs) < 2 {
		return model.FrequencyNewUser
	}
	oldest, newest := convs[0].CreatedAt, convs[0].CreatedAt
	for _, c := range convs[1:] {
		if c.CreatedAt.Before(oldest) {
			oldest = c.CreatedAt
		}
		if c.CreatedAt.After(newest) {
			newest = c.CreatedAt
		}
	}
	days := max(newest.Sub(oldest).Hours()/24, 1)
	perDay := float64(len(convs)) / days
	switch {
	case perDay > 1:
		return model.FrequencyVeryActive
	case perDay > 0.5:
		return model.FrequencyActive
	case perDay > 0.2:
		return model.FrequencyModerate
	default:
		return model.FrequencyOccasional
	}
}

// satisfactionTrend compares the mean of the three newest ratings with the
// mean of the older ones. convs must be newest first.
func satisfactionTrend(convs []model.Conversation) string {
	var ratings []float64
	for _, c := range convs {
		if c.SatisfactionRating != nil {
			ratings = append(ratings, float64(*c.SatisfactionRating))
		}
	}
	if len(ratings) < 2 {
		return model.TrendInsufficientData
	}
	recent := ratings[:min(3, len(ratings))]
	older := ratings[len(recent):]
	if len(older) == 0 {
		return model.TrendNewFeedback
	}
	diff := mean(recent) - mean(older)
	switch {
	case diff > 0.5:
		return model.TrendImproving
	case diff < -0.5:
		return model.TrendDeclining
	default:
		return model.TrendStable
	}
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
