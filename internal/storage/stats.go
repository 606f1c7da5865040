package storage

import (
	"context"
	"fmt"

	"github.com/lifelonglearners/tortoise/internal/model"
)

// PlatformStats computes the admin dashboard summary. recent bounds the
// recent users, challenges and books lists.
func (db *DB) PlatformStats(ctx context.Context, recent int) (model.PlatformStats, error) {
	var (
		s                model.PlatformStats
		total, completed int
	)
	err := db.pool.QueryRow(ctx,
		`SELECT
		   (SELECT count(*) FROM users),
		   (SELECT count(*) FROM challenges WHERE status = 'active'),
		   (SELECT count(*) FROM books),
		   (SELECT count(*) FROM user_challenges),
		   (SELECT count(*) FROM user_challenges WHERE completed_at IS NOT NULL)`,
	).Scan(&s.TotalUsers, &s.ActiveChallenges, &s.TotalBooks, &total, &completed)
	if err != nil {
		return model.PlatformStats{}, fmt.Errorf("storage: platform counts: %w", err)
	}
	s.CompletionRate = CompletionRate(completed, total)

	if s.RecentUsers, err = db.ListRecentUsers(ctx, recent); err != nil {
		return model.PlatformStats{}, err
	}
	if s.RecentChallenges, err = db.ListChallenges(ctx, ChallengeFilter{Limit: recent}); err != nil {
		return model.PlatformStats{}, err
	}
	if s.RecentBooks, err = db.ListBooks(ctx, BookFilter{Limit: recent}); err != nil {
		return model.PlatformStats{}, err
	}
	return s, nil
}

// CompletionRate returns completed/total as a percentage, or 0 when total is 0.
func CompletionRate(completed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(completed) / float64(total) * 100
}
