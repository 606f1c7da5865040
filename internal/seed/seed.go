// Package seed loads a starter catalog of books and challenges from YAML.
//
// A seed file looks like:
//
//	books:
//	  - title: Atomic Habits
//	    author: James Clear
//	    format: ebook
//	    tags: [habits, productivity]
//	challenges:
//	  - title: 30 Days of Reading
//	    type: reading
//	    status: active
//	    tags: [habits]
//
// Applying a file twice does not duplicate entries: books are matched on
// title and author, challenges on title and creator.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/lifelonglearners/tortoise/internal/model"
	"github.com/lifelonglearners/tortoise/internal/storage"
)

type bookEntry struct {
	Title       string   `yaml:"title"`
	Author      string   `yaml:"author"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
	Language    string   `yaml:"language"`
	Format      string   `yaml:"format"`
	Difficulty  string   `yaml:"difficulty_level"`
}

type challengeEntry struct {
	Title       string     `yaml:"title"`
	Description string     `yaml:"description"`
	Type        string     `yaml:"type"`
	StartDate   *time.Time `yaml:"start_date"`
	EndDate     *time.Time `yaml:"end_date"`
	Visibility  string     `yaml:"visibility"`
	Tags        []string   `yaml:"tags"`
	Difficulty  string     `yaml:"difficulty_level"`
	Status      string     `yaml:"status"`
}

type file struct {
	Books      []bookEntry      `yaml:"books"`
	Challenges []challengeEntry `yaml:"challenges"`
}

// Catalog is a validated seed file. Challenges have no creator until applied.
type Catalog struct {
	Books      []model.Book
	Challenges []model.Challenge
}

// Load parses and validates a YAML seed file. Every invalid entry is
// reported, not just the first.
func Load(r io.Reader) (Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f file
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return Catalog{}, errors.New("seed: file is empty")
		}
		return Catalog{}, fmt.Errorf("seed: parse: %w", err)
	}

	var (
		cat  Catalog
		errs []error
	)
	for i, e := range f.Books {
		b, err := model.CreateBookRequest{
			Title:           e.Title,
			Author:          e.Author,
			Description:     optional(e.Description),
			Tags:            e.Tags,
			Language:        e.Language,
			Format:          model.BookFormat(e.Format),
			DifficultyLevel: optional(e.Difficulty),
		}.Book()
		if err != nil {
			errs = append(errs, fmt.Errorf("books[%d] %q: %w", i, e.Title, err))
			continue
		}
		cat.Books = append(cat.Books, b)
	}
	for i, e := range f.Challenges {
		c, err := model.CreateChallengeRequest{
			Title:           e.Title,
			Description:     optional(e.Description),
			Type:            model.ChallengeType(e.Type),
			StartDate:       e.StartDate,
			EndDate:         e.EndDate,
			Visibility:      model.Visibility(e.Visibility),
			Tags:            e.Tags,
			DifficultyLevel: e.Difficulty,
			Status:          model.ChallengeStatus(e.Status),
		}.Challenge(uuid.Nil)
		if err != nil {
			errs = append(errs, fmt.Errorf("challenges[%d] %q: %w", i, e.Title, err))
			continue
		}
		cat.Challenges = append(cat.Challenges, c)
	}
	if len(errs) > 0 {
		return Catalog{}, fmt.Errorf("seed: invalid entries:\n%w", errors.Join(errs...))
	}
	return cat, nil
}

func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

// Store persists seeded records.
type Store interface {
	AllBooks(ctx context.Context) ([]model.Book, error)
	CreateBook(ctx context.Context, b model.Book) (model.Book, error)
	ListChallenges(ctx context.Context, f storage.ChallengeFilter) ([]model.Challenge, error)
	CreateChallenge(ctx context.Context, c model.Challenge) (model.Challenge, error)
}

// Indexer embeds seeded records for semantic search.
type Indexer interface {
	IndexBook(ctx context.Context, b model.Book) error
	IndexChallenge(ctx context.Context, c model.Challenge) error
}

// Result counts what Apply inserted and skipped.
type Result struct {
	Books             int `json:"books"`
	Challenges        int `json:"challenges"`
	SkippedBooks      int `json:"skipped_books"`
	SkippedChallenges int `json:"skipped_challenges"`
}

// Apply inserts the catalog, attributing everything to creator. Indexing
// failures are logged and do not stop the seed; idx may be nil.
func Apply(ctx context.Context, store Store, idx Indexer, creator uuid.UUID, cat Catalog, logger *slog.Logger) (Result, error) {
	var res Result

	existing, err := store.AllBooks(ctx)
	if err != nil {
		return res, fmt.Errorf("seed: load books: %w", err)
	}
	haveBook := make(map[string]bool, len(existing))
	for _, b := range existing {
		haveBook[bookKey(b)] = true
	}
	for _, b := range cat.Books {
		if haveBook[bookKey(b)] {
			res.SkippedBooks++
			continue
		}
		b.CreatedBy = &creator
		created, err := store.CreateBook(ctx, b)
		if err != nil {
			return res, fmt.Errorf("seed: create book %q: %w", b.Title, err)
		}
		haveBook[bookKey(created)] = true
		res.Books++
		if idx != nil {
			if err := idx.IndexBook(ctx, created); err != nil {
				logger.Warn("seed: index book failed", "book_id", created.ID, "error", err)
			}
		}
	}

	mine, err := store.ListChallenges(ctx, storage.ChallengeFilter{CreatedBy: &creator})
	if err != nil {
		return res, fmt.Errorf("seed: load challenges: %w", err)
	}
	haveChallenge := make(map[string]bool, len(mine))
	for _, c := range mine {
		haveChallenge[normalize(c.Title)] = true
	}
	for _, c := range cat.Challenges {
		if haveChallenge[normalize(c.Title)] {
			res.SkippedChallenges++
			continue
		}
		c.CreatedBy = creator
		created, err := store.CreateChallenge(ctx, c)
		if err != nil {
			return res, fmt.Errorf("seed: create challenge %q: %w", c.Title, err)
		}
		haveChallenge[normalize(created.Title)] = true
		res.Challenges++
		if idx != nil {
			if err := idx.IndexChallenge(ctx, created); err != nil {
				logger.Warn("seed: index challenge failed", "challenge_id", created.ID, "error", err)
			}
		}
	}

	logger.Info("seed applied",
		"books", res.Books, "challenges", res.Challenges,
		"skipped_books", res.SkippedBooks, "skipped_challenges", res.SkippedChallenges)
	return res, nil
}

func bookKey(b model.Book) string {
	return normalize(b.Title) + "\x00" + normalize(b.Author)
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
