package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/trackvault-backend/pkg/config"
	"github.com/angelmondragon/trackvault-backend/pkg/db"
	"github.com/angelmondragon/trackvault-backend/pkg/logger"
	"github.com/angelmondragon/trackvault-backend/pkg/migrate"
)

const usage = `usage: migrate [-dir path] <command> [arg]

-dir defaults to the migrations compiled into the binary; create writes to
pkg/migrate/migrations unless -dir is set.

commands:
  up              apply all pending migrations
  down            roll back the latest migration
  redo            roll back and re-apply the latest migration
  status          print applied and pending migrations
  to <version>    migrate up or down to an exact version (YYYYMMDDHHMMSS)
  create <name>   write a new timestamped SQL migration
  validate        lint the migration files without a database
`

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	flags := flag.NewFlagSet("migrate", flag.ExitOnError)
	dir := flags.String("dir", "", "read migrations from this directory instead of the embedded set")
	flags.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	_ = flags.Parse(os.Args[1:])

	cmd, err := parseCommand(flags.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n\n%s", err, usage)
		os.Exit(2)
	}

	if err := run(context.Background(), logg, cmd, *dir); err != nil {
		logg.Error(logg.WithField(context.Background(), "cmd", cmd.name), "migrate failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logg *logger.Logger, cmd command, dir string) error {
	if cmd.name == cmdCreate {
		if dir == "" {
			dir = migrate.SourceDir
		}
		path, err := migrate.Create(dir, cmd.arg)
		if err != nil {
			return err
		}
		fmt.Println("created", path)
		return nil
	}

	fsys, err := migrate.Source(dir)
	if err != nil {
		return err
	}
	if cmd.name == cmdValidate {
		if err := migrate.Validate(fsys); err != nil {
			return err
		}
		fmt.Println("migrations ok")
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": cmd.name})

	client, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer client.Close()

	if cfg.FeatureFlags.UseSQLite {
		if cmd.name != cmdUp {
			return fmt.Errorf("sqlite schemas only support %q", cmdUp)
		}
		if err := migrate.AutoMigrateSQLite(ctx, client); err != nil {
			return err
		}
		logg.Info(ctx, "sqlite schema migrated")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extract sql.DB: %w", err)
	}
	m, err := migrate.NewMigrator(sqlDB, fsys)
	if err != nil {
		return err
	}

	if cmd.name == cmdStatus {
		statuses, err := m.Status(ctx)
		if err != nil {
			return err
		}
		printStatus(os.Stdout, statuses)
		return nil
	}

	var results []*goose.MigrationResult
	switch cmd.name {
	case cmdUp:
		results, err = m.Up(ctx)
	case cmdDown:
		results, err = m.Down(ctx)
	case cmdRedo:
		results, err = m.Redo(ctx)
	case cmdTo:
		results, err = m.To(ctx, cmd.arg)
	default:
		err = fmt.Errorf("unhandled command %q", cmd.name)
	}
	for _, res := range results {
		logg.Info(logg.WithFields(ctx, resultFields(res)), "migration applied")
	}
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "count", len(results)), "migrate finished")
	return nil
}
