package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"os"

	"github.com/latchkey-auth/latchkey/internal/config"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

// Applies schema migrations. Run without arguments for "up"; any goose
// command works, e.g. `migrate down` or `migrate status`.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	var dir string
	flag.StringVar(&dir, "dir", "migrations", "directory with migration files")
	flag.Parse()

	command := "up"
	if args := flag.Args(); len(args) > 0 {
		command = args[0]
	}

	cfg, err := config.LoadDatabase()
	if err != nil {
		logger.Error("failed to load database configuration", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		logger.Error("failed to set goose dialect", slog.Any("error", err))
		os.Exit(1)
	}

	if err := goose.RunContext(context.Background(), command, db, dir); err != nil {
		logger.Error("migration failed",
			slog.String("command", command),
			slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("migrations complete", slog.String("command", command))
}
