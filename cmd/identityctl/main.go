// Command identityctl is the operator tool for the identity core: schema
// migrations, secret generation, account unlock, and token inspection.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/piggyvault/identity-core/internal/audit"
	"github.com/piggyvault/identity-core/internal/config"
	pkgcrypto "github.com/piggyvault/identity-core/internal/crypto"
	"github.com/piggyvault/identity-core/internal/errs"
	"github.com/piggyvault/identity-core/internal/lockout"
	"github.com/piggyvault/identity-core/internal/migrate"
	"github.com/piggyvault/identity-core/internal/repository/postgres"
	"github.com/piggyvault/identity-core/internal/token"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func usage() {
	fmt.Fprintf(os.Stderr, `identityctl — identity core operations

Usage:
  identityctl migrate                  apply pending schema migrations
  identityctl keygen                   print a fresh signing secret and cipher key
  identityctl unlock -account <id>     release an account from lockout
  identityctl inspect-token -token <t> dump token claims (no verification)
  identityctl version
`)
	os.Exit(2)
}

func main() {
	// Local development convenience; the real environment wins.
	_ = godotenv.Load()

	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {

	case "version":
		fmt.Printf("identityctl %s (%s)\n", version, buildDate)

	case "migrate":
		cfg := mustConfig(logger)
		if err := migrate.Up(ctx, cfg.DatabaseDSN); err != nil {
			logger.Fatal("migrate up", zap.Error(err))
		}
		logger.Info("migrations applied")

	case "keygen":
		// Secrets only ever go to stdout, never to the log.
		secret, err := pkgcrypto.RandHex(24)
		if err != nil {
			logger.Fatal("generate signing secret", zap.Error(err))
		}
		key, err := pkgcrypto.RandHex(config.CipherKeySize)
		if err != nil {
			logger.Fatal("generate cipher key", zap.Error(err))
		}
		fmt.Printf("SESSION_SIGNING_SECRET=%s\nFIELD_CIPHER_KEY=%s\n", secret, key)

	case "unlock":
		fs := flag.NewFlagSet("unlock", flag.ExitOnError)
		account := fs.Int64("account", 0, "account id")
		_ = fs.Parse(flag.Args()[1:])
		if *account <= 0 {
			fmt.Fprintln(os.Stderr, "need -account")
			os.Exit(1)
		}

		cfg := mustConfig(logger)
		db, err := postgres.New(ctx, cfg.DatabaseDSN)
		if err != nil {
			logger.Fatal("connect", zap.Error(err))
		}
		defer db.Close()

		guard := lockout.NewPGWithQuerier(db.Pool, cfg.LockoutThreshold, cfg.LockoutDuration)
		rec := audit.NewDispatcher(logger, cfg.AuditBuffer,
			audit.NewZapSink(logger),
			audit.NewStoreSink(postgres.NewEventRepo(db)),
		)
		defer rec.Close()

		if err := guard.Reset(ctx, *account); err != nil {
			if errors.Is(err, errs.ErrAccountNotFound) {
				logger.Fatal("account not found", zap.Int64("account", *account))
			}
			logger.Fatal("unlock", zap.Error(err))
		}
		rec.Record(audit.Event{
			Action:       audit.ActionAccountUnlocked,
			Severity:     audit.SeverityMedium,
			ResourceType: "account",
			ResourceID:   account,
			Result:       audit.ResultSuccess,
			Details:      map[string]string{"via": "identityctl"},
		})
		logger.Info("account unlocked", zap.Int64("account", *account))

	case "inspect-token":
		fs := flag.NewFlagSet("inspect-token", flag.ExitOnError)
		tok := fs.String("token", "", "session token (JWT)")
		_ = fs.Parse(flag.Args()[1:])
		if *tok == "" {
			fmt.Fprintln(os.Stderr, "need -token")
			os.Exit(1)
		}

		claims, err := inspectToken(*tok)
		if err != nil {
			fmt.Fprintf(os.Stderr, "inspect: %v\n", err)
			os.Exit(1)
		}
		out, _ := json.MarshalIndent(claims, "", "  ")
		fmt.Println(string(out))

	default:
		usage()
	}
}

func mustConfig(logger *zap.Logger) *config.Config {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("configuration", zap.Error(err))
	}
	return cfg
}

// inspectedClaims is the operator-facing dump of a token payload.
type inspectedClaims struct {
	AccountID int64     `json:"account_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Use       string    `json:"token_use"`
	JTI       string    `json:"jti"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Expired   bool      `json:"expired"`
}

// inspectToken decodes the payload without verifying the signature. The
// signing secret stays out of this command on purpose: inspection must not
// require access to production secrets.
func inspectToken(tok string) (*inspectedClaims, error) {
	claims, err := token.Inspect(tok)
	if err != nil {
		return nil, err
	}
	out := &inspectedClaims{
		AccountID: claims.AccountID,
		Email:     claims.Email,
		Role:      claims.Role.String(),
		Use:       string(claims.Use),
		JTI:       claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
		out.Expired = time.Now().After(claims.ExpiresAt.Time)
	}
	return out, nil
}
