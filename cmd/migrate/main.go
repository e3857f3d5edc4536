package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-payments/pkg/config"
	"github.com/angelmondragon/storefront-payments/pkg/db"
	"github.com/angelmondragon/storefront-payments/pkg/logger"
	"github.com/angelmondragon/storefront-payments/pkg/migrate"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "up|down|redo|status|version|create|validate")
	dir := flag.String("dir", "", "migrations directory (default: migrations built into the binary)")
	name := flag.String("name", "", "migration name for -cmd=create")
	version := flag.String("version", "", "target YYYYMMDDHHMMSS for -cmd=version")
	flag.Parse()

	// create and validate work on files only
	switch *cmd {
	case "create":
		if *name == "" {
			fail("missing -name for create")
		}
		target := *dir
		if target == "" {
			target = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(target, *name)
		if err != nil {
			fail("create migration: %v", err)
		}
		fmt.Println("created", path)
		return
	case "validate":
		err := validate(*dir)
		if err != nil {
			fail("migrations invalid: %v", err)
		}
		fmt.Println("migrations valid")
		return
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": *cmd})

	if cfg.DB.Driver == db.DriverSQLite {
		requireResource(ctx, logg, "database driver", fmt.Errorf("goose migrations target postgres, got driver %q", cfg.DB.Driver))
	}
	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	conn, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql handle", err)
	migrator, err := migrate.New(conn, *dir)
	requireResource(ctx, logg, "migrations", err)

	switch *cmd {
	case "up":
		results, err := migrator.Up(ctx)
		if err != nil {
			fail("goose up: %v", err)
		}
		for _, res := range results {
			fmt.Printf("applied %s (%s)\n", res.Source.Path, res.Duration)
		}
	case "down":
		res, err := migrator.Down(ctx)
		if err != nil {
			fail("goose down: %v", err)
		}
		fmt.Println("rolled back", res.Source.Path)
	case "redo":
		if err := migrator.Redo(ctx); err != nil {
			fail("goose redo: %v", err)
		}
	case "status":
		if err := migrator.Status(ctx, os.Stdout); err != nil {
			fail("goose status: %v", err)
		}
	case "version":
		if *version == "" {
			fail("missing -version")
		}
		if err := migrator.To(ctx, *version); err != nil {
			fail("goose version: %v", err)
		}
	default:
		fail("unknown -cmd %q", *cmd)
	}
	logg.Info(ctx, "migrate finished")
}

func validate(dir string) error {
	if dir != "" {
		return migrate.ValidateDir(dir)
	}
	source, err := migrate.Source()
	if err != nil {
		return err
	}
	return migrate.ValidateFS(source)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
