package service_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cast-server/internal/model"
	"cast-server/internal/service"
)

func TestNewPromptProvider_MissingDir(t *testing.T) {
	_, err := service.NewPromptProvider(filepath.Join(t.TempDir(), "no_such_dir"), zap.NewNop())
	assert.ErrorIs(t, err, model.ErrPromptsDirMissing)
}

func TestPromptProvider_Get(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "build_story.txt"), []byte("Build a story."), 0o644))

	p, err := service.NewPromptProvider(dir, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "Build a story.", p.Get("build_story"))
}

func TestPromptProvider_TrimsSurroundingWhitespace(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "feedback.txt"), []byte("\nGive feedback.\n\n"), 0o644))

	p, err := service.NewPromptProvider(dir, zap.NewNop())
	require.NoError(t, err)

	// Хвостовые переводы строк не должны просачиваться в склейку промптов
	assert.Equal(t, "Give feedback.", p.Get("feedback"))
}

func TestPromptProvider_GetMissingFile(t *testing.T) {
	p, err := service.NewPromptProvider(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	// Отсутствующий файл дает самоописывающийся маркер, а не панику
	assert.Equal(t, "Error loading prompt: nonexistent", p.Get("nonexistent"))
}

func TestPromptProvider_Memoizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "feedback.txt")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o644))

	p, err := service.NewPromptProvider(dir, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, "original", p.Get("feedback"))

	// Содержимое читается один раз при первом обращении
	require.NoError(t, os.WriteFile(path, []byte("changed"), 0o644))
	assert.Equal(t, "original", p.Get("feedback"))
}
