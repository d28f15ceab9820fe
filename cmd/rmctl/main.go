package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/dmitrijs2005/requestmanager/internal/admin"
	"github.com/dmitrijs2005/requestmanager/internal/logging"
	"github.com/dmitrijs2005/requestmanager/internal/server/auth"
	"github.com/dmitrijs2005/requestmanager/internal/server/config"
	"github.com/dmitrijs2005/requestmanager/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/requestmanager/internal/server/services"
	"github.com/sethvargo/go-envconfig"
)

type migrator struct {
	db *sql.DB
	rm repomanager.RepositoryManager
}

func (m migrator) Migrate(ctx context.Context) error { return m.rm.RunMigrations(ctx, m.db) }

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, admin.Usage)
		os.Exit(2)
	}
	if err := run(context.Background(), os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "rmctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, args []string) error {
	cfg, err := config.Load(ctx, args, envconfig.OsLookuper())
	if err != nil {
		return err
	}

	logger := logging.New(logging.Options{Format: "console", Level: "warn", Output: os.Stderr})

	db, err := repomanager.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	rm := repomanager.NewPostgresRepositoryManager()
	hasher := auth.NewHasher(auth.DefaultParams)

	cmds := admin.NewCommands(
		migrator{db: db, rm: rm},
		services.NewBreakglassService(db, rm, hasher, logger),
		services.NewHealthService(db, rm, logger),
		os.Stdout,
	)
	return cmds.Run(ctx, command)
}
