package database

import (
	"context"
	"fmt"
	"log/slog"

	"anonfeed/internal/config"
	"anonfeed/internal/middleware"

	"gorm.io/gorm"
)

const (
	SchemaModeHybrid = "hybrid"
	SchemaModeSQL    = "sql"
	SchemaModeAuto   = "auto"
)

// SchemaStatus describes what ApplySchema would do and where the feed tables stand.
type SchemaStatus struct {
	Mode           string
	Environment    string
	RunSQL         bool
	RunAutoMigrate bool
	Applied        []int
	Pending        []Migration
	Tables         []TableStatus
}

// TableStatus is one feed table. Rows is only meaningful when Present is true.
type TableStatus struct {
	Name    string
	Present bool
	Rows    int64
}

func schemaMode(cfg *config.Config) string {
	if cfg.DBSchemaMode == "" {
		return SchemaModeHybrid
	}
	return cfg.DBSchemaMode
}

// schemaPolicy decides which schema steps run. Production and staging never
// auto-migrate; they only replay the SQL migrations.
func schemaPolicy(cfg *config.Config) (runSQL bool, runAuto bool, err error) {
	locked := cfg.IsProduction() || cfg.Env == "staging" || cfg.Env == "stage"

	switch mode := schemaMode(cfg); mode {
	case SchemaModeSQL:
		return true, false, nil
	case SchemaModeAuto:
		if locked {
			return false, false, fmt.Errorf("refusing DB_SCHEMA_MODE=auto in %q", cfg.Env)
		}
		return false, true, nil
	case SchemaModeHybrid:
		return true, !locked, nil
	default:
		return false, false, fmt.Errorf("unsupported DB_SCHEMA_MODE %q", mode)
	}
}

func runAutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(PersistentModels()...)
}

// ApplySchema runs the SQL migrations and GORM AutoMigrate as the policy allows.
func ApplySchema(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	runSQL, runAuto, err := schemaPolicy(cfg)
	if err != nil {
		return err
	}

	if runSQL {
		if err := RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("run sql migrations: %w", err)
		}
	}
	if runAuto {
		middleware.Logger.Info("Running GORM AutoMigrate", slog.String("mode", schemaMode(cfg)), slog.String("env", cfg.Env))
		if err := runAutoMigrate(db.WithContext(ctx)); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
	}
	return nil
}

// GetSchemaStatus reports the policy, migration progress and feed table sizes
// without changing anything.
func GetSchemaStatus(ctx context.Context, db *gorm.DB, cfg *config.Config) (*SchemaStatus, error) {
	runSQL, runAuto, err := schemaPolicy(cfg)
	if err != nil {
		return nil, err
	}

	status := &SchemaStatus{
		Mode:           schemaMode(cfg),
		Environment:    cfg.Env,
		RunSQL:         runSQL,
		RunAutoMigrate: runAuto,
	}

	status.Pending, status.Applied, err = newMigrator(db).pending(ctx)
	if err != nil {
		return nil, err
	}

	status.Tables, err = feedTables(ctx, db)
	if err != nil {
		return nil, err
	}
	return status, nil
}

func feedTables(ctx context.Context, db *gorm.DB) ([]TableStatus, error) {
	db = db.WithContext(ctx)
	tables := make([]TableStatus, 0, len(PersistentModels()))
	for _, model := range PersistentModels() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(model); err != nil {
			return nil, fmt.Errorf("parse model: %w", err)
		}

		t := TableStatus{Name: stmt.Table, Present: db.Migrator().HasTable(model)}
		if t.Present {
			if err := db.Model(model).Count(&t.Rows).Error; err != nil {
				return nil, fmt.Errorf("count %s: %w", t.Name, err)
			}
		}
		tables = append(tables, t)
	}
	return tables, nil
}
