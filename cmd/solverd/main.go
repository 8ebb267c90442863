// Command solverd runs the solver on an in-process host and serves its HTTP
// API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/R3E-Network/solver_layer/internal/app"
	"github.com/R3E-Network/solver_layer/internal/chain"
	"github.com/R3E-Network/solver_layer/internal/config"
	"github.com/R3E-Network/solver_layer/internal/httpapi"
	"github.com/R3E-Network/solver_layer/internal/logging"
)

func main() {
	configPath := flag.String("config", os.Getenv("SOLVER_CONFIG"), "path to the YAML configuration file")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the configuration")
	issueFor := flag.String("issue-token", "", "print a bearer token for this address and exit")
	issueRole := flag.String("role", "", "role claim of the issued token")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New("solverd", cfg.Log.Level, cfg.Log.Format)

	if *issueFor != "" {
		token, err := issueToken(cfg, log, *issueFor, *issueRole)
		if err != nil {
			log.WithError(err).Fatal("failed to issue token")
		}
		fmt.Println(token)
		return
	}

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("solverd failed")
	}
	log.Info("solverd stopped")
}

func run(cfg *config.Config, log *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}
	defer application.Close()
	return application.Run(ctx)
}

// issueToken signs a bearer token from the auth settings alone; the
// application, and with it the database, is never built.
func issueToken(cfg *config.Config, log *logging.Logger, subject, role string) (string, error) {
	who, err := chain.ParseAddress(subject)
	if err != nil {
		return "", err
	}
	auth := httpapi.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL, log, httpapi.PublicPaths)
	return auth.Issue(who, role)
}
