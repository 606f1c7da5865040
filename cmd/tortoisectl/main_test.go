package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifelonglearners/tortoise/internal/model"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestClassifyCommand(t *testing.T) {
	out, err := execute(t, "classify", "recommend", "a", "novel", "about", "habits")
	require.NoError(t, err)
	assert.Contains(t, out, "intent:     book_request")
	assert.Contains(t, out, "novel")
	assert.Contains(t, out, "habits")
}

func TestClassifyCommandJSON(t *testing.T) {
	out, err := execute(t, "classify", "--json", "I need some motivation")
	require.NoError(t, err)

	var got struct {
		Intent   model.Intent `json:"intent"`
		Source   string       `json:"source"`
		Keywords []string     `json:"keywords"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, model.IntentMotivationRequest, got.Intent)
	assert.Equal(t, "keyword", got.Source)
	assert.Contains(t, got.Keywords, "motivation")
}

func TestClassifyCommandRequiresMessage(t *testing.T) {
	_, err := execute(t, "classify")
	assert.Error(t, err)
}

func TestSeedDryRun(t *testing.T) {
	out, err := execute(t, "seed", "--dry-run", filepath.Join("..", "..", "internal", "seed", "testdata", "catalog.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "is valid: 3 books, 3 challenges")
}

func TestSeedValidatesBeforeConnecting(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("books:\n  - title: Orphan\n"), 0o600))

	_, err := execute(t, "seed", "--creator", "admin@example.com", bad)
	assert.ErrorContains(t, err, `books[0] "Orphan"`)

	_, err = execute(t, "seed", filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestSeedRequiresCreator(t *testing.T) {
	_, err := execute(t, "seed", filepath.Join("..", "..", "internal", "seed", "testdata", "catalog.yaml"))
	assert.ErrorContains(t, err, "--creator is required")
}

func TestReindexRejectsBadBatch(t *testing.T) {
	_, err := execute(t, "reindex", "--batch", "0")
	assert.ErrorContains(t, err, "--batch must be positive")
}

func TestGenkeyCommand(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "genkey", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "TORTOISE_JWT_PRIVATE_KEY="+filepath.Join(dir, "jwt_private.pem"))
	assert.FileExists(t, filepath.Join(dir, "jwt_public.pem"))

	_, err = execute(t, "genkey", "--dir", dir)
	assert.ErrorContains(t, err, "already exists")
}
