package migration

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
)

// lockTimeout ограничивает ожидание advisory-блокировки migrate,
// чтобы второй инстанс воркера не висел на старте бесконечно.
const lockTimeout = 30 * time.Second

// Config описывает источник миграций: встроенная файловая система
// и путь к .sql файлам внутри нее.
type Config struct {
	MigrationsPath string
	MigrationsFS   fs.FS
}

// Migrator применяет схему базы данных поверх существующего pgx пула.
type Migrator struct {
	config Config
	pool   *pgxpool.Pool
}

// NewMigrator создает мигратор поверх пула соединений.
func NewMigrator(config Config, pool *pgxpool.Pool) *Migrator {
	return &Migrator{config: config, pool: pool}
}

// Up доводит схему до последней версии. Отсутствие новых миграций
// ошибкой не считается.
func (m *Migrator) Up(ctx context.Context) error {
	return m.run(ctx, func(mg *migrate.Migrate) error { return mg.Up() }, "applied")
}

// Down откатывает все миграции. Используется только в обслуживании.
func (m *Migrator) Down(ctx context.Context) error {
	return m.run(ctx, func(mg *migrate.Migrate) error { return mg.Down() }, "rolled back")
}

// Version возвращает текущую версию схемы и флаг dirty.
// Нулевая версия означает чистую базу без миграций.
func (m *Migrator) Version(ctx context.Context) (uint, bool, error) {
	mg, err := m.newMigrate(ctx)
	if err != nil {
		return 0, false, err
	}
	defer mg.Close()

	version, dirty, err := mg.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

func (m *Migrator) run(ctx context.Context, step func(*migrate.Migrate) error, action string) error {
	mg, err := m.newMigrate(ctx)
	if err != nil {
		return err
	}
	defer mg.Close()

	if err := step(mg); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Info().Msg("database migrations " + action)
	return nil
}

func (m *Migrator) newMigrate(ctx context.Context) (*migrate.Migrate, error) {
	source, err := iofs.New(m.config.MigrationsFS, m.config.MigrationsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open migrations source: %w", err)
	}

	// Драйверу migrate нужен *sql.DB; stdlib оборачивает существующий пул
	db := stdlib.OpenDBFromPool(m.pool)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable:       "schema_migrations",
		MigrationsTableQuoted: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	mg, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	mg.LockTimeout = lockTimeout

	return mg, nil
}
