package server

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/lifelonglearners/tortoise/internal/model"
	"github.com/lifelonglearners/tortoise/internal/storage"
)

// memStore is an in-memory stand-in for *storage.DB covering what the
// handlers, the chat pipeline and the catalog service read and write.
type memStore struct {
	mu sync.Mutex

	pingErr error
	listErr error

	users         map[uuid.UUID]model.User
	books         []model.Book
	challenges    []model.Challenge
	conversations []model.Conversation
	interactions  []model.Interaction
	memberships   []model.Membership
}

func newMemStore() *memStore {
	return &memStore{users: make(map[uuid.UUID]model.User)}
}

func (s *memStore) Ping(context.Context) error { return s.pingErr }

func (s *memStore) CreateUser(_ context.Context, u model.User) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return model.User{}, storage.ErrConflict
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = model.RoleLearner
	}
	if u.Preferences == nil {
		u.Preferences = map[string]any{}
	}
	if u.LearningInterests == nil {
		u.LearningInterests = []string{}
	}
	if u.LanguagePreference == "" {
		u.LanguagePreference = model.DefaultLanguage
	}
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	s.users[u.ID] = u
	return u, nil
}

func (s *memStore) GetUser(_ context.Context, id uuid.UUID) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *memStore) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, storage.ErrNotFound
}

func (s *memStore) UpdatePreferences(_ context.Context, id uuid.UUID, p model.Preferences) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, storage.ErrNotFound
	}
	u.Preferences = p.Preferences
	u.LearningInterests = p.LearningInterests
	u.LanguagePreference = p.LanguagePreference
	s.users[id] = u
	return u, nil
}

func (s *memStore) SetUserRole(_ context.Context, id uuid.UUID, role model.UserRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.Role = role
	s.users[id] = u
	return nil
}

func (s *memStore) MergeLearningInterests(_ context.Context, id uuid.UUID, keywords []string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	u.LearningInterests = model.MergeInterests(u.LearningInterests, keywords, limit)
	s.users[id] = u
	return u.LearningInterests, nil
}

func (s *memStore) InsertConversation(_ context.Context, c model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.conversations = append(s.conversations, c)
	return nil
}

func (s *memStore) UpdateConversationFeedback(_ context.Context, id uuid.UUID, rating int, feedback *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			s.conversations[i].SatisfactionRating = &rating
			s.conversations[i].Feedback = feedback
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *memStore) ListConversations(_ context.Context, userID uuid.UUID, limit int) ([]model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Conversation
	for i := len(s.conversations) - 1; i >= 0; i-- {
		c := s.conversations[i]
		if c.UserID != nil && *c.UserID == userID {
			out = append(out, c)
		}
	}
	return limited(out, limit), nil
}

func (s *memStore) InsertInteraction(_ context.Context, in model.Interaction) (model.Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[in.UserID]; !ok {
		return model.Interaction{}, storage.ErrNotFound
	}
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	s.interactions = append(s.interactions, in)
	return in, nil
}

func (s *memStore) ListInteractions(_ context.Context, userID uuid.UUID, limit int) ([]model.Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Interaction
	for i := len(s.interactions) - 1; i >= 0; i-- {
		if s.interactions[i].UserID == userID {
			out = append(out, s.interactions[i])
		}
	}
	return limited(out, limit), nil
}

func (s *memStore) CreateBook(_ context.Context, b model.Book) (model.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.Tags == nil {
		b.Tags = []string{}
	}
	b.CreatedAt = time.Now().UTC()
	s.books = append(s.books, b)
	return b, nil
}

func (s *memStore) GetBook(_ context.Context, id uuid.UUID) (model.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.books {
		if b.ID == id {
			return b, nil
		}
	}
	return model.Book{}, storage.ErrNotFound
}

func (s *memStore) ListBooks(_ context.Context, f storage.BookFilter) ([]model.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []model.Book
	for _, b := range s.books {
		if f.Language != "" && b.Language != f.Language {
			continue
		}
		if f.Format != "" && string(b.Format) != f.Format {
			continue
		}
		if f.Difficulty != "" && (b.DifficultyLevel == nil || *b.DifficultyLevel != f.Difficulty) {
			continue
		}
		if len(f.Tags) > 0 && !overlaps(b.Tags, f.Tags) {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(b.Title), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, b)
	}
	return limited(out, f.Limit), nil
}

func (s *memStore) GetBooksByIDs(_ context.Context, ids []uuid.UUID) ([]model.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Book
	for _, b := range s.books {
		if slices.Contains(ids, b.ID) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memStore) CreateChallenge(_ context.Context, c model.Challenge) (model.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	c.CreatedAt = time.Now().UTC()
	s.challenges = append(s.challenges, c)
	return c, nil
}

func (s *memStore) GetChallenge(_ context.Context, id uuid.UUID) (model.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.challenges {
		if c.ID == id {
			return c, nil
		}
	}
	return model.Challenge{}, storage.ErrNotFound
}

func (s *memStore) ListChallenges(_ context.Context, f storage.ChallengeFilter) ([]model.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []model.Challenge
	for _, c := range s.challenges {
		if f.Type != "" && string(c.Type) != f.Type {
			continue
		}
		if f.Difficulty != "" && c.DifficultyLevel != f.Difficulty {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, c.Status) {
			continue
		}
		if f.Visibility != "" && c.Visibility != f.Visibility {
			continue
		}
		if f.CreatedBy != nil && c.CreatedBy != *f.CreatedBy {
			continue
		}
		if len(f.Tags) > 0 && !overlaps(c.Tags, f.Tags) {
			continue
		}
		out = append(out, c)
	}
	return limited(out, f.Limit), nil
}

func (s *memStore) GetChallengesByIDs(_ context.Context, ids []uuid.UUID) ([]model.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Challenge
	for _, c := range s.challenges {
		if slices.Contains(ids, c.ID) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memStore) JoinChallenge(_ context.Context, userID, challengeID uuid.UUID) (model.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.memberships {
		if m.UserID == userID && m.ChallengeID == challengeID {
			return model.Membership{}, storage.ErrConflict
		}
	}
	m := model.Membership{
		ID: uuid.New(), UserID: userID, ChallengeID: challengeID,
		JoinedAt: time.Now().UTC(), Progress: map[string]any{},
	}
	s.memberships = append(s.memberships, m)
	return m, nil
}

func (s *memStore) CompleteChallenge(_ context.Context, userID, challengeID uuid.UUID) (model.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.memberships {
		if m.UserID == userID && m.ChallengeID == challengeID {
			now := time.Now().UTC()
			s.memberships[i].CompletedAt = &now
			return s.memberships[i], nil
		}
	}
	return model.Membership{}, storage.ErrNotFound
}

func (s *memStore) ListJoinedChallenges(_ context.Context, userID uuid.UUID, limit int) ([]model.JoinedChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.JoinedChallenge
	for _, m := range s.memberships {
		if m.UserID != userID {
			continue
		}
		for _, c := range s.challenges {
			if c.ID == m.ChallengeID {
				out = append(out, model.JoinedChallenge{Membership: m, Challenge: c})
			}
		}
	}
	return limited(out, limit), nil
}

func (s *memStore) PlatformStats(_ context.Context, recent int) (model.PlatformStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := model.PlatformStats{
		TotalUsers:       len(s.users),
		TotalBooks:       len(s.books),
		RecentUsers:      []model.User{},
		RecentChallenges: limited(s.challenges, recent),
		RecentBooks:      limited(s.books, recent),
	}
	completed := 0
	for _, m := range s.memberships {
		if m.CompletedAt != nil {
			completed++
		}
	}
	for _, c := range s.challenges {
		if c.Status == model.StatusActive {
			st.ActiveChallenges++
		}
	}
	st.CompletionRate = storage.CompletionRate(completed, len(s.memberships))
	return st, nil
}

// Embedding methods: the tests run without an embedding provider, so these
// are never reached with real data.

func (s *memStore) NearestBooks(context.Context, pgvector.Vector, int) ([]model.Book, error) {
	return nil, nil
}

func (s *memStore) NearestChallenges(context.Context, pgvector.Vector, int) ([]model.Challenge, error) {
	return nil, nil
}

func (s *memStore) SetBookEmbedding(context.Context, uuid.UUID, pgvector.Vector) error { return nil }

func (s *memStore) SetChallengeEmbedding(context.Context, uuid.UUID, pgvector.Vector) error {
	return nil
}

func (s *memStore) BooksMissingEmbedding(context.Context, int) ([]model.Book, error) {
	return nil, nil
}

func (s *memStore) ChallengesMissingEmbedding(context.Context, int) ([]model.Challenge, error) {
	return nil, nil
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		if slices.Contains(b, x) {
			return true
		}
	}
	return false
}

func limited[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
