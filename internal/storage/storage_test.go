package storage_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifelonglearners/tortoise/internal/model"
	"github.com/lifelonglearners/tortoise/internal/storage"
	"github.com/lifelonglearners/tortoise/internal/testutil"
	"github.com/lifelonglearners/tortoise/migrations"
)

// testDB is shared by every test in this package. It is nil when Docker is
// unavailable, in which case the integration tests skip.
var testDB *storage.DB

func TestMain(m *testing.M) {
	tc, err := testutil.StartPostgres()
	if err != nil {
		fmt.Fprintf(os.Stderr, "storage: skipping integration tests: %v\n", err)
		os.Exit(m.Run())
	}

	testDB, err = tc.NewTestDB(context.Background(), testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "storage: %v\n", err)
		tc.Terminate()
		os.Exit(1)
	}

	code := m.Run()
	testDB.Close()
	tc.Terminate()
	os.Exit(code)
}

func requireDB(t *testing.T) {
	t.Helper()
	if testDB == nil {
		t.Skip("docker not available")
	}
}

func uniqueTag(t *testing.T) string {
	t.Helper()
	return "t" + uuid.NewString()[:8]
}

func createTestUser(t *testing.T, role model.UserRole) model.User {
	t.Helper()
	u, err := testDB.CreateUser(context.Background(), model.User{
		Name:  "Test " + string(role),
		Email: uuid.NewString() + "@example.com",
		Role:  role,
	})
	require.NoError(t, err)
	return u
}

func ptr[T any](v T) *T { return &v }

func TestCompletionRate(t *testing.T) {
	assert.Equal(t, 0.0, storage.CompletionRate(0, 0))
	assert.Equal(t, 50.0, storage.CompletionRate(1, 2))
	assert.InDelta(t, 33.333, storage.CompletionRate(1, 3), 0.001)
}

func TestRunMigrationsIdempotent(t *testing.T) {
	requireDB(t)
	require.NoError(t, testDB.RunMigrations(context.Background(), migrations.FS))
}

func TestUsers(t *testing.T) {
	requireDB(t)
	ctx := context.Background()

	u := createTestUser(t, model.RoleLearner)
	assert.Equal(t, model.DefaultLanguage, u.LanguagePreference)

	got, err := testDB.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)
	assert.Equal(t, model.RoleLearner, got.Role)
	assert.Empty(t, got.LearningInterests)

	byEmail, err := testDB.GetUserByEmail(ctx, u.Email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	_, err = testDB.CreateUser(ctx, model.User{Name: "dup", Email: u.Email})
	assert.ErrorIs(t, err, storage.ErrConflict)

	_, err = testDB.GetUser(ctx, uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdatePreferences(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	u := createTestUser(t, model.RoleLearner)

	updated, err := testDB.UpdatePreferences(ctx, u.ID, model.Preferences{
		Preferences:        map[string]any{"difficulty_level": "advanced"},
		LearningInterests:  []string{"go"},
		LanguagePreference: "amharic",
	})
	require.NoError(t, err)
	assert.Equal(t, "amharic", updated.LanguagePreference)
	assert.Equal(t, "advanced", model.PreferencesOf(updated).Difficulty())
	assert.False(t, updated.UpdatedAt.Before(u.UpdatedAt))

	defaults, err := testDB.UpdatePreferences(ctx, u.ID, model.Preferences{})
	require.NoError(t, err)
	assert.Equal(t, model.DefaultLanguage, defaults.LanguagePreference)
	assert.Empty(t, defaults.Preferences)
	assert.Empty(t, defaults.LearningInterests)

	_, err = testDB.UpdatePreferences(ctx, uuid.New(), model.Preferences{})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMergeLearningInterests(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	u := createTestUser(t, model.RoleLearner)

	got, err := testDB.MergeLearningInterests(ctx, u.ID, []string{"python", "career"}, 20)
	require.NoError(t, err)
	assert.Equal(t, []string{"python", "career"}, got)

	got, err = testDB.MergeLearningInterests(ctx, u.ID, []string{"career", "rust"}, 20)
	require.NoError(t, err)
	assert.Equal(t, []string{"python", "career", "rust"}, got)

	reloaded, err := testDB.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, got, reloaded.LearningInterests)

	_, err = testDB.MergeLearningInterests(ctx, uuid.New(), []string{"x"}, 20)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBooks(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	tag := uniqueTag(t)
	creator := createTestUser(t, model.RoleCreator)

	older, err := testDB.CreateBook(ctx, model.Book{
		Title: "Fikir Eske Mekabir", Author: "Haddis Alemayehu", Language: "amharic",
		Format: model.FormatPrint, Tags: []string{tag, "novel"}, CreatedBy: &creator.ID,
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	})
	require.NoError(t, err)
	newer, err := testDB.CreateBook(ctx, model.Book{
		Title: "The Go Programming Language", Author: "Donovan", Format: model.FormatEbook,
		Description: ptr("A thorough introduction to Go"), Tags: []string{tag, "programming"},
		DifficultyLevel: ptr(model.DifficultyIntermediate),
	})
	require.NoError(t, err)

	got, err := testDB.GetBook(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, "english", got.Language)
	require.NotNil(t, got.DifficultyLevel)
	assert.Equal(t, model.DifficultyIntermediate, *got.DifficultyLevel)
	assert.Nil(t, got.CreatedBy)

	byTag, err := testDB.ListBooks(ctx, storage.BookFilter{Tags: []string{tag}, Limit: 10})
	require.NoError(t, err)
	require.Len(t, byTag, 2)
	assert.Equal(t, newer.ID, byTag[0].ID, "newest first")
	assert.Equal(t, older.ID, byTag[1].ID)

	amharic, err := testDB.ListBooks(ctx, storage.BookFilter{Tags: []string{tag}, Language: "amharic"})
	require.NoError(t, err)
	require.Len(t, amharic, 1)
	assert.Equal(t, older.ID, amharic[0].ID)

	all, err := testDB.ListBooks(ctx, storage.BookFilter{Tags: []string{tag}, Language: "all", Format: "all"})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	search, err := testDB.ListBooks(ctx, storage.BookFilter{Tags: []string{tag}, Search: "thorough"})
	require.NoError(t, err)
	require.Len(t, search, 1)
	assert.Equal(t, newer.ID, search[0].ID)

	wildcard, err := testDB.ListBooks(ctx, storage.BookFilter{Tags: []string{tag}, Search: "%"})
	require.NoError(t, err)
	assert.Empty(t, wildcard, "LIKE wildcards are escaped")

	ordered, err := testDB.GetBooksByIDs(ctx, []uuid.UUID{older.ID, uuid.New(), newer.ID})
	require.NoError(t, err)
	require.Len(t, ordered, 2)
	assert.Equal(t, older.ID, ordered[0].ID)

	_, err = testDB.GetBook(ctx, uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestChallengesAndMemberships(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	tag := uniqueTag(t)
	creator := createTestUser(t, model.RoleCreator)
	learner := createTestUser(t, model.RoleLearner)

	active, err := testDB.CreateChallenge(ctx, model.Challenge{
		Title: "30 days of Go", Type: model.ChallengeCoding, CreatedBy: creator.ID,
		Tags: []string{tag}, Status: model.StatusActive,
	})
	require.NoError(t, err)
	assert.Equal(t, model.VisibilityPublic, active.Visibility)
	assert.Equal(t, model.DifficultyBeginner, active.DifficultyLevel)

	_, err = testDB.CreateChallenge(ctx, model.Challenge{
		Title: "Finished reading sprint", Type: model.ChallengeReading, CreatedBy: creator.ID,
		Tags: []string{tag}, Status: model.StatusCompleted,
	})
	require.NoError(t, err)
	private, err := testDB.CreateChallenge(ctx, model.Challenge{
		Title: "Private speaking club", Type: model.ChallengeSpeaking, CreatedBy: creator.ID,
		Tags: []string{tag}, Visibility: model.VisibilityPrivate, Status: model.StatusUpcoming,
	})
	require.NoError(t, err)

	open, err := testDB.ListChallenges(ctx, storage.ChallengeFilter{Tags: []string{tag}, Statuses: model.OpenStatuses, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, open, 2)

	public, err := testDB.ListChallenges(ctx, storage.ChallengeFilter{
		Tags: []string{tag}, Visibility: model.VisibilityPublic, Statuses: model.OpenStatuses,
	})
	require.NoError(t, err)
	require.Len(t, public, 1)
	assert.Equal(t, active.ID, public[0].ID)

	mine, err := testDB.ListChallenges(ctx, storage.ChallengeFilter{CreatedBy: &creator.ID})
	require.NoError(t, err)
	assert.Len(t, mine, 3)

	joined, err := testDB.HasJoined(ctx, learner.ID, active.ID)
	require.NoError(t, err)
	assert.False(t, joined)

	m, err := testDB.JoinChallenge(ctx, learner.ID, active.ID)
	require.NoError(t, err)
	assert.Nil(t, m.CompletedAt)

	_, err = testDB.JoinChallenge(ctx, learner.ID, active.ID)
	assert.ErrorIs(t, err, storage.ErrConflict)
	_, err = testDB.JoinChallenge(ctx, learner.ID, uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)

	joined, err = testDB.HasJoined(ctx, learner.ID, active.ID)
	require.NoError(t, err)
	assert.True(t, joined)

	_, err = testDB.JoinChallenge(ctx, learner.ID, private.ID)
	require.NoError(t, err)

	done, err := testDB.CompleteChallenge(ctx, learner.ID, active.ID)
	require.NoError(t, err)
	require.NotNil(t, done.CompletedAt)

	list, err := testDB.ListJoinedChallenges(ctx, learner.ID, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, private.ID, list[0].Challenge.ID, "most recently joined first")

	_, err = testDB.CompleteChallenge(ctx, creator.ID, active.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestConversations(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	u := createTestUser(t, model.RoleLearner)
	intent := model.IntentBookRequest

	conv := model.Conversation{
		ID:      uuid.New(),
		UserID:  &u.ID,
		Message: "recommend a book",
		Intent:  &intent,
		RecommendationsGiven: []model.Recommendation{
			{Kind: "book", ID: uuid.New(), Title: "Dune", Tags: []string{"scifi"}},
		},
		ContextUsed:    map[string]any{"intent": "book_request"},
		ResponseTimeMS: ptr(120),
	}
	require.NoError(t, testDB.InsertConversation(ctx, conv))

	// Anonymous conversations have no user.
	require.NoError(t, testDB.InsertConversation(ctx, model.Conversation{Message: "hello"}))

	list, err := testDB.ListConversations(ctx, u.ID, 20)
	require.NoError(t, err)
	require.Len(t, list, 1)
	got := list[0]
	assert.Equal(t, conv.ID, got.ID)
	require.NotNil(t, got.Intent)
	assert.Equal(t, model.IntentBookRequest, *got.Intent)
	require.Len(t, got.RecommendationsGiven, 1)
	assert.Equal(t, []string{"scifi"}, got.RecommendationsGiven[0].Tags)
	assert.Nil(t, got.SatisfactionRating)

	require.NoError(t, testDB.UpdateConversationFeedback(ctx, conv.ID, 4, ptr("helpful")))
	list, err = testDB.ListConversations(ctx, u.ID, 20)
	require.NoError(t, err)
	require.NotNil(t, list[0].SatisfactionRating)
	assert.Equal(t, 4, *list[0].SatisfactionRating)

	err = testDB.UpdateConversationFeedback(ctx, uuid.New(), 3, nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestInteractions(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	u := createTestUser(t, model.RoleLearner)

	first, err := testDB.InsertInteraction(ctx, model.Interaction{
		UserID: u.ID, InteractionType: "view", EntityType: "book",
		Metadata: map[string]any{"tags": []string{"history"}},
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, first.ID)

	_, err = testDB.InsertInteraction(ctx, model.Interaction{
		UserID: u.ID, InteractionType: "join", EntityType: "challenge", EntityID: ptr(uuid.NewString()),
	})
	require.NoError(t, err)

	list, err := testDB.ListInteractions(ctx, u.ID, 20)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "join", list[0].InteractionType)
	assert.Equal(t, []string{"history"}, list[1].Tags())

	_, err = testDB.InsertInteraction(ctx, model.Interaction{UserID: uuid.New(), InteractionType: "view", EntityType: "book"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPlatformStats(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	createTestUser(t, model.RoleLearner)

	s, err := testDB.PlatformStats(ctx, 5)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, s.TotalUsers, 1)
	assert.LessOrEqual(t, len(s.RecentUsers), 5)
	assert.GreaterOrEqual(t, s.CompletionRate, 0.0)
	assert.LessOrEqual(t, s.CompletionRate, 100.0)
}

func TestEmbeddings(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	tag := uniqueTag(t)

	b, err := testDB.CreateBook(ctx, model.Book{Title: "Vectors", Author: "A", Format: model.FormatPDF, Tags: []string{tag}})
	require.NoError(t, err)

	missing, err := testDB.BooksMissingEmbedding(ctx, 1000)
	require.NoError(t, err)
	assert.Contains(t, bookIDs(missing), b.ID)

	vec := make([]float32, 1024)
	vec[0] = 1
	require.NoError(t, testDB.SetBookEmbedding(ctx, b.ID, pgvector.NewVector(vec)))

	nearest, err := testDB.NearestBooks(ctx, pgvector.NewVector(vec), 1)
	require.NoError(t, err)
	require.Len(t, nearest, 1)
	assert.Equal(t, b.ID, nearest[0].ID)

	missing, err = testDB.BooksMissingEmbedding(ctx, 1000)
	require.NoError(t, err)
	assert.NotContains(t, bookIDs(missing), b.ID)
}

func bookIDs(books []model.Book) []uuid.UUID {
	ids := make([]uuid.UUID, len(books))
	for i, b := range books {
		ids[i] = b.ID
	}
	return ids
}
