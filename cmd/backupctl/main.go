package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/edvin/hostbackup/internal/app"
	"github.com/edvin/hostbackup/internal/config"
	"github.com/edvin/hostbackup/internal/db"
	"github.com/edvin/hostbackup/internal/logging"
	"github.com/edvin/hostbackup/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate("backupctl"); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	if cmd == "migrate" {
		fs := flag.NewFlagSet("migrate", flag.ExitOnError)
		dir := fs.String("dir", "", "Migration files directory (default: embedded migrations)")
		fs.Parse(args)
		if err := db.RunMigrations(cfg.DatabaseURL, *dir); err != nil {
			fail(err)
		}
		fmt.Println("migrations applied")
		return
	}

	svc, closeFn, err := connect(ctx, cfg, logger)
	if err != nil {
		fail(err)
	}
	defer closeFn()

	cli := &commands{svc: svc, out: os.Stdout}
	switch cmd {
	case "run":
		err = cli.run(ctx, args)
	case "restore":
		err = cli.restore(ctx, args)
	case "test":
		err = cli.test(ctx, args)
	case "compliance":
		err = cli.compliance(ctx, args)
	case "list":
		err = cli.list(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fail(err)
	}
}

func connect(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app.Services, func(), error) {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: cfg.DBMaxConnLifetime,
		MaxConnIdleTime: cfg.DBMaxConnIdleTime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect to log store: %w", err)
	}
	svc, err := app.NewServices(cfg, logger, store.NewPostgres(pool), app.Options{})
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return svc, pool.Close, nil
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage:
  backupctl migrate [-dir DIR]                            Apply log store migrations
  backupctl run [-project ID | -all]                      Back up one or all projects now
  backupctl restore -project ID -backup NAME -type TYPE   Restore a backup
        [-operator NAME] [-reason TEXT] [-target PATH]
  backupctl test -project ID [-operator NAME]             Run a compliance restore test
  backupctl compliance [-quarter YYYY-Qn] [-notify]       List projects needing a restore test
  backupctl list [-project ID] [-status STATUS]           List backup records

Configuration is read from the environment (DATABASE_URL, PROJECTS_FILE, ...).`)
}
