package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// defaultSecretsDir - стандартный путь монтирования Docker Secrets.
const defaultSecretsDir = "/run/secrets"

// ReadSecret читает обязательный секрет из файла. Каталог секретов можно
// переопределить переменной SECRETS_DIR (локальная разработка без Docker).
// Fallback на переменные окружения намеренно отсутствует: секрет либо лежит
// в файле, либо сервис не стартует.
func ReadSecret(name string) (string, error) {
	dir := os.Getenv("SECRETS_DIR")
	if dir == "" {
		dir = defaultSecretsDir
	}

	path := filepath.Join(dir, name)
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", path, err)
	}

	value := strings.TrimSpace(string(raw))
	if value == "" {
		return "", fmt.Errorf("secret file %s is empty", path)
	}
	return value, nil
}
