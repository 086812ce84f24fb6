package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/testimonioya/recovery-service/internal/auth"
	"github.com/testimonioya/recovery-service/internal/config"
	"github.com/testimonioya/recovery-service/internal/persistence"
	"github.com/testimonioya/recovery-service/internal/service"
	apperrors "github.com/testimonioya/recovery-service/pkg/util"
)

// newCLIApp creates the operator CLI with all commands.
func newCLIApp() *cli.App {
	app := &cli.App{
		Name:    "recoveryctl",
		Usage:   "Operator tooling for recovery cases",
		Version: Version,
		Commands: []*cli.Command{
			tokenCmd(),
			linkCmd(),
			verifyCmd(),
			sessionCmd(),
			migrateCmd(),
		},
	}
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func secretFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "secret", EnvVars: []string{"RECOVERY_TOKEN_SECRET"}, Usage: "Capability token secret"},
		&cli.StringSliceFlag{Name: "previous-secret", EnvVars: []string{"RECOVERY_TOKEN_PREVIOUS_SECRETS"}, Usage: "Retired secrets still accepted for validation"},
	}
}

func caseFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "case", Aliases: []string{"c"}, Required: true, Usage: "Recovery case ID"},
		&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Required: true, Usage: "Customer email on the case"},
	}
}

func caseTokens(c *cli.Context) (*auth.CaseTokens, error) {
	tokens, err := auth.NewCaseTokens(c.String("secret"), c.StringSlice("previous-secret")...)
	if err != nil {
		return nil, outputError(apperrors.NewValidationError("a token secret is required (--secret or RECOVERY_TOKEN_SECRET)", nil))
	}
	return tokens, nil
}

// tokenCmd prints the capability token for a case.
func tokenCmd() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Print the customer capability token for a case",
		Flags: append(caseFlags(), secretFlags()...),
		Action: func(c *cli.Context) error {
			tokens, err := caseTokens(c)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.App.Writer, tokens.Generate(c.String("case"), c.String("email")))
			return err
		},
	}
}

// linkCmd prints the customer reply link for a case.
func linkCmd() *cli.Command {
	flags := append(caseFlags(), secretFlags()...)
	flags = append(flags, &cli.StringFlag{
		Name:    "base-url",
		EnvVars: []string{"APP_PUBLIC_BASE_URL"},
		Value:   "https://testimonioya.com",
		Usage:   "Public site base URL",
	})
	return &cli.Command{
		Name:  "link",
		Usage: "Print the customer reply link for a case",
		Flags: flags,
		Action: func(c *cli.Context) error {
			tokens, err := caseTokens(c)
			if err != nil {
				return err
			}
			caseID := c.String("case")
			base := strings.TrimRight(c.String("base-url"), "/")
			_, err = fmt.Fprintln(c.App.Writer, service.BuildCustomerLink(base, caseID, tokens.Generate(caseID, c.String("email"))))
			return err
		},
	}
}

// verifyCmd checks a token the way the customer endpoints do.
func verifyCmd() *cli.Command {
	flags := append(caseFlags(), secretFlags()...)
	flags = append(flags, &cli.StringFlag{Name: "token", Aliases: []string{"t"}, Required: true, Usage: "Token to check"})
	return &cli.Command{
		Name:  "verify",
		Usage: "Check a customer capability token",
		Flags: flags,
		Action: func(c *cli.Context) error {
			tokens, err := caseTokens(c)
			if err != nil {
				return err
			}
			valid := tokens.Validate(c.String("case"), c.String("email"), c.String("token"))
			if err := outputJSON(c, map[string]any{"case_id": c.String("case"), "valid": valid}); err != nil {
				return err
			}
			if !valid {
				return cli.Exit("", 2)
			}
			return nil
		},
	}
}

// sessionCmd mints a dashboard session token for local testing.
func sessionCmd() *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "Mint a dashboard session JWT for a user",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Required: true, Usage: "Business owner user ID"},
			&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Usage: "Owner email claim"},
			&cli.StringFlag{Name: "jwt-secret", EnvVars: []string{"AUTH_JWT_SECRET"}, Usage: "Session signing secret"},
			&cli.IntFlag{Name: "ttl", Value: 60, Usage: "Lifetime in minutes"},
		},
		Action: func(c *cli.Context) error {
			secret := c.String("jwt-secret")
			if strings.TrimSpace(secret) == "" {
				return outputError(apperrors.NewValidationError("a session secret is required (--jwt-secret or AUTH_JWT_SECRET)", nil))
			}
			tok, exp, err := auth.NewTokenManager(secret, c.Int("ttl")).GenerateToken(c.String("user"), c.String("email"))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, map[string]any{"access_token": tok, "expires_at": exp})
		},
	}
}

// migrateCmd applies the embedded schema to the configured database.
func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply schema migrations to Postgres or SQLite",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "postgres-dsn", EnvVars: []string{"POSTGRES_DSN"}, Usage: "Postgres connection string"},
			&cli.StringFlag{Name: "sqlite-path", EnvVars: []string{"SQLITE_PATH"}, Usage: "SQLite database file"},
		},
		Action: func(c *cli.Context) error {
			cfg := &config.Config{
				Postgres: config.PostgresConfig{DSN: c.String("postgres-dsn"), MaxConns: 2, MinConns: 1, RunMigrations: true},
				SQLite:   config.SQLiteConfig{Path: c.String("sqlite-path")},
			}
			if cfg.Postgres.DSN == "" && cfg.SQLite.Path == "" {
				return outputError(apperrors.NewValidationError("set --postgres-dsn or --sqlite-path", nil))
			}

			logger, err := zap.NewDevelopment()
			if err != nil {
				return outputError(err)
			}
			defer logger.Sync() //nolint:errcheck

			stores, err := persistence.OpenStores(context.Background(), cfg, logger)
			if err != nil {
				return outputError(err)
			}
			defer stores.Close()
			return outputJSON(c, map[string]any{"backend": stores.Backend, "migrated": true})
		},
	}
}

func outputJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var de *apperrors.DomainError
	if errors.As(err, &de) {
		return cli.Exit(fmt.Sprintf("[%s] %s", de.Code, de.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
