package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/afonso-rickman/newdelivery/pkg/config"
	"github.com/afonso-rickman/newdelivery/pkg/db"
	"github.com/afonso-rickman/newdelivery/pkg/logger"
	"github.com/afonso-rickman/newdelivery/pkg/migrate"
)

const serviceKind = "migrate"

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

// offline commands work on the migrations directory only.
var offline = map[string]func(context.Context, *logger.Logger, options) error{
	"create": func(ctx context.Context, logg *logger.Logger, opts options) error {
		if opts.name == "" {
			return errors.New("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			return err
		}
		logg.Info(logg.WithField(ctx, "path", path), "migration created")
		return nil
	},
	"validate": func(ctx context.Context, logg *logger.Logger, opts options) error {
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return err
		}
		logg.Info(ctx, "migration validation passed")
		return nil
	},
}

// online commands need a database connection.
var online = map[string]func(context.Context, *logger.Logger, *migrate.Migrator, options) error{
	"up": func(ctx context.Context, logg *logger.Logger, m *migrate.Migrator, _ options) error {
		results, err := m.Up(ctx)
		logResults(ctx, logg, results)
		return err
	},
	"down": func(ctx context.Context, logg *logger.Logger, m *migrate.Migrator, _ options) error {
		res, err := m.Down(ctx)
		if err != nil {
			return err
		}
		logResults(ctx, logg, []migrate.Result{res})
		return nil
	},
	"status": func(ctx context.Context, logg *logger.Logger, m *migrate.Migrator, _ options) error {
		rows, err := m.Status(ctx)
		if err != nil {
			return err
		}
		for _, row := range rows {
			fields := map[string]any{"version": row.Version, "path": row.Path, "applied": row.Applied}
			if row.Applied {
				fields["applied_at"] = row.AppliedAt
			}
			logg.Info(logg.WithFields(ctx, fields), "migration status")
		}
		return nil
	},
	"version": func(ctx context.Context, logg *logger.Logger, m *migrate.Migrator, opts options) error {
		if opts.version == "" {
			return errors.New("missing -version for version command")
		}
		target, err := strconv.ParseInt(opts.version, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", opts.version, err)
		}
		results, err := m.To(ctx, target)
		logResults(ctx, logg, results)
		return err
	},
}

func logResults(ctx context.Context, logg *logger.Logger, results []migrate.Result) {
	for _, res := range results {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"version":     res.Version,
			"direction":   res.Direction,
			"duration_ms": res.Duration.Milliseconds(),
		}), "migration applied")
	}
}

func main() {
	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "migration command: up|down|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", "", "migrations directory (default: embedded for up/down/status/version, "+migrate.DefaultDir+" for create/validate)")
	flag.StringVar(&opts.name, "name", "", "migration name (for create)")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: serviceKind})
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if fn, ok := offline[opts.cmd]; ok {
		if opts.dir == "" {
			opts.dir = migrate.DefaultDir
		}
		ctx = logg.WithFields(ctx, map[string]any{"cmd": opts.cmd, "dir": opts.dir})
		exitOnError(ctx, logg, opts.cmd, fn(ctx, logg, opts))
		return
	}
	fn, ok := online[opts.cmd]
	if !ok {
		exitOnError(ctx, logg, "flags", fmt.Errorf("unknown -cmd value %q", opts.cmd))
	}

	cfg, err := config.Load()
	exitOnError(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"env": cfg.App.Env,
		"cmd": opts.cmd,
		"dir": opts.dir,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	exitOnError(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	sqlDB, err := dbClient.DB().DB()
	exitOnError(ctx, logg, "sql database", err)

	migrator, err := migrate.New(sqlDB, opts.dir)
	if err != nil {
		_ = dbClient.Close()
		exitOnError(ctx, logg, "migrator", err)
	}

	if err := fn(ctx, logg, migrator, opts); err != nil {
		_ = dbClient.Close()
		exitOnError(ctx, logg, "goose "+opts.cmd, err)
	}
	logg.Info(ctx, "migrate complete")
}

func exitOnError(ctx context.Context, logg *logger.Logger, step string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("%s failed", step), err)
	os.Exit(1)
}
