package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	mcpclient "github.com/mark3labs/mcp-go/client"
	mcptransport "github.com/mark3labs/mcp-go/client/transport"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifelonglearners/tortoise/internal/auth"
	"github.com/lifelonglearners/tortoise/internal/mcp"
	"github.com/lifelonglearners/tortoise/internal/model"
	"github.com/lifelonglearners/tortoise/internal/server"
	"github.com/lifelonglearners/tortoise/internal/service/catalog"
	"github.com/lifelonglearners/tortoise/internal/service/intent"
	"github.com/lifelonglearners/tortoise/internal/service/tortoise"
	"github.com/lifelonglearners/tortoise/internal/testutil"
)

const (
	adminEmail    = "admin@tortoise.test"
	adminPassword = "slow-and-steady"
)

var testSrv *httptest.Server

func TestMain(m *testing.M) {
	tc, err := testutil.StartPostgres()
	if err != nil {
		fmt.Fprintln(os.Stderr, "skipping server integration tests:", err)
		os.Exit(m.Run())
	}
	code := setupAndRun(m, tc)
	tc.Terminate()
	os.Exit(code)
}

func setupAndRun(m *testing.M, tc *testutil.TestContainer) int {
	ctx := context.Background()
	logger := testutil.TestLogger()

	db, err := tc.NewTestDB(ctx, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "server test: %v\n", err)
		return 1
	}
	defer db.Close()

	jwtMgr, err := auth.NewJWTManager("", "", time.Hour)
	if err != nil {
		fmt.Fprintf(os.Stderr, "server test: jwt: %v\n", err)
		return 1
	}
	cat := catalog.New(db, nil, nil, logger)
	svc := tortoise.New(tortoise.Config{
		Store:      db,
		Catalog:    cat,
		Classifier: intent.NewClassifier(nil, "", logger),
		Logger:     logger,
	})
	mcpSrv := mcp.New(db, cat, svc, logger, "test")

	srv := server.New(server.ServerConfig{
		Store:               db,
		JWTMgr:              jwtMgr,
		Tortoise:            svc,
		Catalog:             cat,
		Logger:              logger,
		MCPServer:           mcpSrv.MCPServer(),
		Version:             "test",
		Environment:         "test",
		MaxRequestBodyBytes: 1 << 20,
	})
	if err := srv.Handlers().EnsureAdmin(ctx, adminEmail, adminPassword); err != nil {
		fmt.Fprintf(os.Stderr, "server test: ensure admin: %v\n", err)
		return 1
	}

	testSrv = httptest.NewServer(srv.Handler())
	defer testSrv.Close()
	return m.Run()
}

func requireServer(t *testing.T) {
	t.Helper()
	if testSrv == nil {
		t.Skip("Docker is not available")
	}
}

func call(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, testSrv.URL+path, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decodeData[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var env struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &env), "body: %s", raw)
	return env.Data
}

func signup(t *testing.T, name string, role model.UserRole) model.AuthResponse {
	t.Helper()
	resp, body := call(t, "POST", "/api/auth/signup", "", model.SignupRequest{
		Email:    fmt.Sprintf("%s-%s@tortoise.test", strings.ToLower(name), uuid.NewString()[:8]),
		Password: "correct horse battery",
		Name:     name,
		Role:     role,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	return decodeData[model.AuthResponse](t, body)
}

func login(t *testing.T, email, password string) string {
	t.Helper()
	resp, body := call(t, "POST", "/api/auth/login", "", model.LoginRequest{Email: email, Password: password})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	return decodeData[model.AuthResponse](t, body).Token
}

func TestHealthEndpoint(t *testing.T) {
	requireServer(t)
	resp, body := call(t, "GET", "/api/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	h := decodeData[model.HealthResponse](t, body)
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, "connected", h.Database)
}

func TestLearnerJourney(t *testing.T) {
	requireServer(t)
	creator := signup(t, "Selam", model.RoleCreator)
	learner := signup(t, "Dawit", model.RoleLearner)

	// The creator publishes a book and a challenge.
	resp, body := call(t, "POST", "/api/books", creator.Token, model.CreateBookRequest{
		Title:  "The Tortoise Method",
		Author: "Aesop Abebe",
		Format: model.FormatEbook,
		Tags:   []string{"consistency", "habits"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	book := decodeData[model.Book](t, body)

	resp, body = call(t, "POST", "/api/challenges", creator.Token, model.CreateChallengeRequest{
		Title:  "Thirty Days of Consistency",
		Type:   model.ChallengeReading,
		Status: model.StatusActive,
		Tags:   []string{"consistency"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	challenge := decodeData[model.Challenge](t, body)

	// A learner cannot publish.
	resp, _ = call(t, "POST", "/api/books", learner.Token, model.CreateBookRequest{Title: "x", Author: "y", Format: model.FormatPDF})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// The learner asks for a book and gets a streamed offline reply.
	resp, body = call(t, "POST", "/api/ai/ask", learner.Token, model.AskRequest{Message: "Any novel on consistency?"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, string(model.IntentBookRequest), resp.Header.Get("X-Intent"))
	assert.Contains(t, string(body), book.Title)
	convID, err := uuid.Parse(resp.Header.Get("X-Conversation-ID"))
	require.NoError(t, err)

	resp, body = call(t, "POST", "/api/ai/feedback", learner.Token, model.FeedbackRequest{ConversationID: convID, Rating: 4})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = call(t, "GET", "/api/users/"+learner.User.ID.String()+"/conversations", learner.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	convs := decodeData[[]model.Conversation](t, body)
	require.Len(t, convs, 1)
	assert.Equal(t, convID, convs[0].ID)
	require.NotNil(t, convs[0].SatisfactionRating)
	assert.Equal(t, 4, *convs[0].SatisfactionRating)

	// Asking taught the profile an interest.
	resp, body = call(t, "GET", "/api/users/"+learner.User.ID.String(), learner.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, decodeData[model.User](t, body).LearningInterests, "consistency")

	// Join, then complete, the challenge.
	resp, body = call(t, "POST", "/api/challenges/"+challenge.ID.String()+"/join", learner.Token, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	resp, _ = call(t, "POST", "/api/challenges/"+challenge.ID.String()+"/join", learner.Token, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp, body = call(t, "POST", "/api/challenges/"+challenge.ID.String()+"/complete", learner.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = call(t, "GET", "/api/users/"+learner.User.ID.String()+"/challenges", learner.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	joined := decodeData[[]model.JoinedChallenge](t, body)
	require.Len(t, joined, 1)
	assert.NotNil(t, joined[0].CompletedAt)

	resp, body = call(t, "GET", "/api/users/"+learner.User.ID.String()+"/insights", learner.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	insights := decodeData[model.LearningInsights](t, body)
	assert.Contains(t, insights.PreferredChallengeTypes, string(model.ChallengeReading))

	// History feeds recommendations.
	resp, body = call(t, "GET", "/api/search/recommendations/"+learner.User.ID.String(), learner.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	recs := decodeData[model.Recommendations](t, body)
	assert.Contains(t, recs.Interests, "consistency")

	// Someone else's data stays private.
	resp, _ = call(t, "GET", "/api/users/"+learner.User.ID.String()+"/conversations", creator.Token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSearchEndpoints(t *testing.T) {
	requireServer(t)
	creator := signup(t, "Hana", model.RoleCreator)
	title := "Patience Practice " + uuid.NewString()[:6]
	resp, body := call(t, "POST", "/api/books", creator.Token, model.CreateBookRequest{
		Title: title, Author: "Hana Tesfaye", Format: model.FormatAudio, Language: "amharic",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	resp, body = call(t, "GET", "/api/search/books?q=patience+practice&language=amharic", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	found := decodeData[struct {
		Books []model.ScoredBook `json:"books"`
		Total int                `json:"total"`
	}](t, body)
	require.NotZero(t, found.Total)
	assert.Equal(t, title, found.Books[0].Title)

	resp, _ = call(t, "GET", "/api/search/challenges?type=coding", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminStats(t *testing.T) {
	requireServer(t)
	token := login(t, adminEmail, adminPassword)

	resp, body := call(t, "GET", "/api/admin/stats", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	stats := decodeData[model.PlatformStats](t, body)
	assert.GreaterOrEqual(t, stats.TotalUsers, 1)

	learner := signup(t, "Meron", model.RoleLearner)
	resp, _ = call(t, "GET", "/api/admin/stats", learner.Token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func newMCPClient(t *testing.T, token string) *mcpclient.Client {
	t.Helper()
	c, err := mcpclient.NewStreamableHttpClient(
		testSrv.URL+"/mcp",
		mcptransport.WithHTTPHeaders(map[string]string{
			"Authorization": "Bearer " + token,
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	_, err = c.Initialize(context.Background(), mcplib.InitializeRequest{
		Params: mcplib.InitializeParams{
			ClientInfo: mcplib.Implementation{Name: "test-client", Version: "1.0"},
		},
	})
	require.NoError(t, err)
	return c
}

func TestMCPUnauthenticated(t *testing.T) {
	requireServer(t)
	resp, err := http.Post(testSrv.URL+"/mcp", "application/json", nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMCPTools(t *testing.T) {
	requireServer(t)
	learner := signup(t, "Lulit", model.RoleLearner)
	c := newMCPClient(t, learner.Token)
	ctx := context.Background()

	tools, err := c.ListTools(ctx, mcplib.ListToolsRequest{})
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{
		"tortoise_search_books",
		"tortoise_search_challenges",
		"tortoise_recommend",
		"tortoise_classify_intent",
		"tortoise_learning_plan",
	} {
		assert.True(t, names[want], "expected %s tool", want)
	}

	res, err := c.CallTool(ctx, mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      "tortoise_classify_intent",
			Arguments: map[string]any{"message": "I need some motivation today"},
		},
	})
	require.NoError(t, err)
	require.False(t, res.IsError, "classify returned error: %v", res.Content)
	var classified intent.Result
	for _, content := range res.Content {
		if tc, ok := content.(mcplib.TextContent); ok {
			require.NoError(t, json.Unmarshal([]byte(tc.Text), &classified))
			break
		}
	}
	assert.Equal(t, model.IntentMotivationRequest, classified.Intent)

	// Recommendations use the caller's identity by default.
	res, err = c.CallTool(ctx, mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: "tortoise_recommend"},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError, "recommend returned error: %v", res.Content)
}
