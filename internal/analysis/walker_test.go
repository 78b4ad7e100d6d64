package analysis

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/repograph/internal/entity"
	"github.com/rohankatakam/repograph/internal/logging"
	"github.com/rohankatakam/repograph/internal/models"
)

// writeRepo lays out a fixture repository and returns it registered
func writeRepo(t *testing.T, files map[string]string) *models.Repository {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	}
	return &models.Repository{ID: "repo-1", Name: "fixture", Path: root}
}

func produce(t *testing.T, p entity.Producer, repo *models.Repository) *entity.Set {
	t.Helper()
	set := entity.NewSet()
	require.NoError(t, p.Produce(context.Background(), repo, set))
	return set
}

func byName(entities []entity.Entity) map[string]entity.Entity {
	out := make(map[string]entity.Entity, len(entities))
	for _, e := range entities {
		out[e.Name] = e
	}
	return out
}

func TestWalker_Files(t *testing.T) {
	repo := writeRepo(t, map[string]string{
		".gitignore":                 "*.log\nsecret.txt\n",
		"src/app.js":                 "console.log(1)",
		"src/vendor.min.js":          "x",
		"debug.log":                  "noise",
		"secret.txt":                 "hunter2",
		"node_modules/lib/index.js":  "module.exports = {}",
		"README.md":                  "# Fixture",
		"api/service.pb.go":          "package api",
		"pkg/util/strings_helper.go": "package util",
	})

	w := NewWalker(repo.Path, 0)
	files, err := w.Files(context.Background())
	require.NoError(t, err)

	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{".gitignore", "README.md", "pkg/util/strings_helper.go", "src/app.js"}, paths)
}

func TestWalker_ReadSizeCap(t *testing.T) {
	repo := writeRepo(t, map[string]string{
		"small.txt": "ok",
		"big.txt":   strings.Repeat("x", 64),
	})
	w := NewWalker(repo.Path, 16)

	content, err := w.ReadPath("small.txt")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(content))

	_, err = w.ReadPath("big.txt")
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestWalker_MissingRoot(t *testing.T) {
	w := NewWalker(filepath.Join(t.TempDir(), "missing"), 0)
	_, err := w.Files(context.Background())
	assert.Error(t, err)
}

func TestLineOf(t *testing.T) {
	content := []byte("a\nbb\nccc\n")
	assert.Equal(t, 1, lineOf(content, 0))
	assert.Equal(t, 2, lineOf(content, 2))
	assert.Equal(t, 3, lineOf(content, 6))
	assert.Equal(t, 4, lineOf(content, 100))
}

func TestContainsKeyword(t *testing.T) {
	tests := []struct {
		text    string
		keyword string
		want    bool
	}{
		{"func CheckPermission()", "permission", true},
		{"user_login handler", "login", true},
		{"the processor runs", "sso", false},
		{"verifyToken(req)", "verifyToken", true},
		{"jwt.sign(payload)", "jwt", true},
		{"accessible", "acl", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, containsKeyword(tt.text, tt.keyword))
		})
	}
}

func TestRegisterBuiltins(t *testing.T) {
	r := entity.NewRegistry()
	RegisterBuiltins(r, logging.Discard(), Options{Workers: 2})

	stages := r.Stages()
	require.Len(t, stages, 5)
	assert.Equal(t, StageDependencies, stages[0].Name)
	assert.Equal(t, StageIndexing, stages[4].Name)
	assert.Len(t, stages[4].Producers, 3)
}
