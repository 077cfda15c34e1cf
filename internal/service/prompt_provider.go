package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"cast-server/internal/model"
)

// PromptProvider отдаёт тексты промптов из директории PromptsDir, кешируя их
// в памяти на время жизни процесса. Файлы именуются <name>.txt.
type PromptProvider struct {
	dir       string
	cacheLock sync.RWMutex
	cacheMap  map[string]string
	logger    *zap.Logger
}

// NewPromptProvider создает новый PromptProvider. Отсутствие директории -
// ошибка конфигурации, запуск должен падать сразу, а не на первом запросе.
func NewPromptProvider(dir string, logger *zap.Logger) (*PromptProvider, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", model.ErrPromptsDirMissing, dir)
	}
	return &PromptProvider{
		dir:      dir,
		cacheMap: make(map[string]string),
		logger:   logger.Named("PromptProvider"),
	}, nil
}

// Get возвращает текст промпта по имени. Ошибка чтения не прерывает пайплайн:
// вместо текста возвращается видимый маркер "Error loading prompt: <name>",
// который уезжает в запрос к модели и сразу показывает оператору, какой файл
// сломан.
func (p *PromptProvider) Get(name string) string {
	p.cacheLock.RLock()
	content, ok := p.cacheMap[name]
	p.cacheLock.RUnlock()
	if ok {
		return content
	}

	data, err := os.ReadFile(filepath.Join(p.dir, name+".txt"))
	if err != nil {
		p.logger.Error("Failed to load prompt file", zap.String("name", name), zap.Error(err))
		return fmt.Sprintf("Error loading prompt: %s", name)
	}
	// Хвостовые переводы строк из файла иначе накапливаются при склейке
	// промптов
	content = strings.TrimSpace(string(data))

	p.cacheLock.Lock()
	p.cacheMap[name] = content
	p.cacheLock.Unlock()

	p.logger.Debug("Prompt loaded into cache", zap.String("name", name))
	return content
}
