// Command useradd creates a tunevault account from the terminal.
//
//	useradd -d postgres://... -email alice@example.com -name Alice [-role admin]
//
// The password is read from the terminal without echo, or from the first line
// of stdin when stdin is not a terminal.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/tunevault/internal/server/auth"
	"github.com/dmitrijs2005/tunevault/internal/server/config"
	"github.com/dmitrijs2005/tunevault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tunevault/internal/server/services"
)

func main() {
	if err := realMain(); err != nil {
		fmt.Fprintln(os.Stderr, "useradd:", err)
		os.Exit(1)
	}
}

func realMain() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		return err
	}
	cfg := config.LoadConfig()

	db, err := sql.Open(repomanager.DriverName, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	defer db.Close()

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return err
	}

	svc := services.NewUserService(db, rm, auth.NewCodec([]byte(cfg.SecretKey)), cfg)
	return run(ctx, opts, svc, os.Stdin, os.Stdout)
}
