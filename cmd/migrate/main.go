// Command migrate manages the feed database schema.
//
//	migrate up               apply pending SQL migrations
//	migrate auto             run GORM AutoMigrate (refused in production)
//	migrate status           show policy, pending migrations and feed tables
//	migrate down [version]   revert one migration, newest by default
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"anonfeed/internal/config"
	"anonfeed/internal/database"
)

func main() {
	timeout := flag.Duration("timeout", 5*time.Minute, "give up after this long")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: migrate [-timeout d] <up|auto|status|down> [version]")
		flag.PrintDefaults()
	}
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	if err := run(ctx, os.Stdout, flag.Args()); err != nil {
		if errors.Is(err, errUsage) {
			flag.Usage()
			os.Exit(2)
		}
		log.Fatal(err)
	}
}

var errUsage = errors.New("usage")

func run(ctx context.Context, out io.Writer, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd := strings.ToLower(strings.TrimSpace(args[0]))

	version := 0
	if cmd == "down" && len(args) > 1 {
		v, err := strconv.Atoi(args[1])
		if err != nil || v <= 0 {
			return fmt.Errorf("invalid version %q", args[1])
		}
		version = v
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: false})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() { _ = database.Close(db) }()

	switch cmd {
	case "up":
		before, err := database.AppliedMigrations(ctx, db)
		if err != nil {
			return err
		}
		if err := database.RunMigrations(ctx, db); err != nil {
			return err
		}
		after, err := database.AppliedMigrations(ctx, db)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "applied %d migration(s), schema at %06d\n", len(after)-len(before), latest(after))
	case "auto":
		cfg.DBSchemaMode = database.SchemaModeAuto
		if err := database.ApplySchema(ctx, db, cfg); err != nil {
			return err
		}
		fmt.Fprintln(out, "feed models auto-migrated")
	case "status":
		status, err := database.GetSchemaStatus(ctx, db, cfg)
		if err != nil {
			return err
		}
		printStatus(out, status)
	case "down":
		m, err := database.RollbackMigration(ctx, db, version)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "rolled back %s\n", m)
	default:
		return errUsage
	}
	return nil
}

func latest(versions []int) int {
	if len(versions) == 0 {
		return 0
	}
	return versions[len(versions)-1]
}

func printStatus(out io.Writer, s *database.SchemaStatus) {
	fmt.Fprintf(out, "mode=%s env=%s run_sql=%t run_auto=%t\n", s.Mode, s.Environment, s.RunSQL, s.RunAutoMigrate)
	fmt.Fprintf(out, "schema at %06d, %d pending\n", latest(s.Applied), len(s.Pending))
	for _, m := range s.Pending {
		fmt.Fprintf(out, "  pending  %s\n", m)
	}
	for _, t := range s.Tables {
		if !t.Present {
			fmt.Fprintf(out, "  table    %-20s missing\n", t.Name)
			continue
		}
		fmt.Fprintf(out, "  table    %-20s %d rows\n", t.Name, t.Rows)
	}
}
