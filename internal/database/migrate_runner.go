package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"anonfeed/internal/middleware"

	"gorm.io/gorm"
)

// ErrNothingToRollback is returned by RollbackMigration when no migration is applied.
var ErrNothingToRollback = errors.New("no applied migrations")

// MigrationLog is one applied migration.
type MigrationLog struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255"`
	AppliedAt time.Time `gorm:"autoCreateTime"`
}

func (MigrationLog) TableName() string {
	return "migration_logs"
}

const createMigrationLogSQL = `
CREATE TABLE IF NOT EXISTS migration_logs (
	version BIGINT PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// migrator applies a migration set and records progress in migration_logs.
type migrator struct {
	db  *gorm.DB
	set []Migration
}

func newMigrator(db *gorm.DB) *migrator {
	return &migrator{db: db, set: feedMigrations}
}

func (m *migrator) applied(ctx context.Context) ([]int, error) {
	var versions []int
	err := m.db.WithContext(ctx).Model(&MigrationLog{}).Order("version ASC").Pluck("version", &versions).Error
	if err != nil {
		if isMissingTableError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read migration log: %w", err)
	}
	return versions, nil
}

// pending returns the migrations not yet applied, refusing a log that holds
// versions this build does not know about.
func (m *migrator) pending(ctx context.Context) ([]Migration, []int, error) {
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, nil, err
	}

	var unknown []string
	for _, v := range applied {
		if !slices.ContainsFunc(m.set, func(mg Migration) bool { return mg.Version == v }) {
			unknown = append(unknown, fmt.Sprintf("%06d", v))
		}
	}
	if len(unknown) > 0 {
		return nil, nil, fmt.Errorf("migration_logs has versions unknown to this build: %s", strings.Join(unknown, ", "))
	}

	var todo []Migration
	for _, mg := range m.set {
		if !slices.Contains(applied, mg.Version) {
			todo = append(todo, mg)
		}
	}
	return todo, applied, nil
}

func (m *migrator) up(ctx context.Context) ([]Migration, error) {
	if err := m.db.WithContext(ctx).Exec(createMigrationLogSQL).Error; err != nil {
		return nil, fmt.Errorf("create migration log: %w", err)
	}

	todo, _, err := m.pending(ctx)
	if err != nil {
		return nil, err
	}
	for i, mg := range todo {
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(mg.Up).Error; err != nil {
				return err
			}
			return tx.Create(&MigrationLog{Version: mg.Version, Name: mg.Name}).Error
		})
		if err != nil {
			return todo[:i], fmt.Errorf("apply %s: %w", mg, err)
		}
		middleware.Logger.Info("Migration applied", slog.String("migration", mg.String()))
	}
	return todo, nil
}

// down reverts version, or the newest applied migration when version is 0.
func (m *migrator) down(ctx context.Context, version int) (Migration, error) {
	applied, err := m.applied(ctx)
	if err != nil {
		return Migration{}, err
	}
	if version == 0 {
		if len(applied) == 0 {
			return Migration{}, ErrNothingToRollback
		}
		version = applied[len(applied)-1]
	}

	mg, ok := migrationByVersion(version)
	if !ok {
		return Migration{}, fmt.Errorf("migration %06d not found", version)
	}
	if !slices.Contains(applied, version) {
		return Migration{}, fmt.Errorf("migration %s has not been applied", mg)
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(mg.Down).Error; err != nil {
			return err
		}
		return tx.Where("version = ?", version).Delete(&MigrationLog{}).Error
	})
	if err != nil {
		return Migration{}, fmt.Errorf("roll back %s: %w", mg, err)
	}
	middleware.Logger.Info("Migration rolled back", slog.String("migration", mg.String()))
	return mg, nil
}

func isMissingTableError(err error) bool {
	msg := err.Error()
	return (strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist")) ||
		strings.Contains(msg, "no such table")
}

// RunMigrations applies every pending feed migration, each in its own transaction.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	_, err := newMigrator(db).up(ctx)
	return err
}

// RollbackMigration reverts one applied migration. Version 0 means the newest.
func RollbackMigration(ctx context.Context, db *gorm.DB, version int) (Migration, error) {
	return newMigrator(db).down(ctx, version)
}

// AppliedMigrations lists the versions recorded in migration_logs.
func AppliedMigrations(ctx context.Context, db *gorm.DB) ([]int, error) {
	return newMigrator(db).applied(ctx)
}
