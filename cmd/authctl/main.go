// Command authctl is a small terminal client for the auth service. It keeps
// its token pair in a local file (or Redis) and demonstrates the full SDK:
// environment-driven configuration, the hooked transport with transparent
// refresh, and user-facing notifications.
//
// Usage:
//
//	authctl register -email you@example.com -password secret123
//	authctl login    -email you@example.com -password secret123
//	authctl whoami
//	authctl status
//	authctl refresh
//	authctl logout
//
// Configuration comes from the environment: AUTH_BASE_URL, AUTH_TOKEN_STORE
// (file|redis|memory), AUTH_TOKEN_FILE, LOG_LEVEL, and friends.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/utafrali/AuthClientGo/api"
	"github.com/utafrali/AuthClientGo/config"
	"github.com/utafrali/AuthClientGo/httpclient"
	"github.com/utafrali/AuthClientGo/logger"
	"github.com/utafrali/AuthClientGo/notify"
	"github.com/utafrali/AuthClientGo/session"
	"github.com/utafrali/AuthClientGo/tokenstore"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log := logger.New(cfg.ClientName, cfg.LogLevel)
	ctx := context.Background()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "token store:", err)
		os.Exit(1)
	}

	// Notifications go straight to the terminal; structured logs go to stderr.
	notifier := notify.Func(func(_ context.Context, level notify.Level, message string) {
		fmt.Printf("[%s] %s\n", level, message)
	})

	mgr := session.NewManager(cfg, store, notifier, log)

	var runErr error
	switch os.Args[1] {
	case "register":
		runErr = runCredentials(ctx, os.Args[2:], "register", mgr.Register)
	case "login":
		runErr = runCredentials(ctx, os.Args[2:], "login", mgr.Login)
	case "whoami":
		runErr = runWhoami(ctx, mgr)
	case "status":
		runErr = runStatus(ctx, store)
	case "refresh":
		runErr = runRefresh(ctx, cfg, store, log)
	case "logout":
		runErr = mgr.Logout(ctx)
	default:
		usage()
		os.Exit(2)
	}

	if runErr != nil {
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: authctl <register|login|whoami|status|refresh|logout> [flags]")
}

func buildStore(ctx context.Context, cfg *config.Config) (tokenstore.Store, error) {
	switch cfg.TokenStore {
	case "redis":
		client, err := tokenstore.NewRedisClient(ctx, tokenstore.RedisConfig{
			Addr:     cfg.RedisAddr(),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		return tokenstore.NewRedisStore(client, cfg.RedisKey), nil
	case "memory":
		return tokenstore.NewMemoryStore(), nil
	default:
		path := cfg.TokenFile
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("resolve home dir: %w", err)
			}
			path = filepath.Join(home, ".authctl", "tokens.json")
		}
		return tokenstore.NewFileStore(path)
	}
}

func runCredentials(
	ctx context.Context,
	args []string,
	name string,
	op func(ctx context.Context, email, password string) (*api.User, error),
) error {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	_ = fs.Parse(args)

	user, err := op(ctx, *email, *password)
	if err != nil {
		return err
	}
	printUser(user)
	return nil
}

func runWhoami(ctx context.Context, mgr *session.Manager) error {
	if state := mgr.Bootstrap(ctx); state != session.StateAuthenticated {
		fmt.Println("not logged in")
		return fmt.Errorf("session state: %s", state)
	}
	printUser(mgr.CurrentUser())
	return nil
}

// runRefresh rotates the token pair directly, outside the session manager.
// The refresh endpoint is guarded by a circuit breaker so a flapping auth
// service fails fast instead of burning the retry budget on every attempt.
func runRefresh(ctx context.Context, cfg *config.Config, store tokenstore.Store, log *slog.Logger) error {
	refreshToken, err := store.Get(ctx, tokenstore.Refresh)
	if err != nil {
		return err
	}
	if refreshToken == "" {
		fmt.Println("no stored session")
		return fmt.Errorf("no refresh token")
	}

	client := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.Config{
			Timeout:         cfg.HTTPTimeout,
			MaxRetries:      cfg.MaxRetries,
			RetryWaitMin:    cfg.RetryWaitMin,
			RetryWaitMax:    cfg.RetryWaitMax,
			MaxConnsPerHost: httpclient.DefaultConfig().MaxConnsPerHost,
		}, httpclient.WithRequestHook(httpclient.CorrelationHook())),
		httpclient.DefaultCircuitBreakerConfig("auth-refresh"),
		log,
	)

	pair, err := api.NewClient(client, cfg.BaseURL).Refresh(ctx, refreshToken)
	if err != nil {
		fmt.Println("refresh failed:", err)
		return err
	}
	if err := store.Set(ctx, tokenstore.Pair{
		Access:  pair.AccessToken,
		Refresh: pair.RefreshToken,
	}); err != nil {
		return err
	}

	fmt.Println("token pair rotated")
	return runStatus(ctx, store)
}

func runStatus(ctx context.Context, store tokenstore.Store) error {
	access, err := store.Get(ctx, tokenstore.Access)
	if err != nil {
		return err
	}
	if access == "" {
		fmt.Println("no stored session")
		return nil
	}

	exp, err := api.PeekExpiry(access)
	if err != nil {
		fmt.Println("stored access token is not inspectable:", err)
		return nil
	}
	if remaining := time.Until(exp); remaining > 0 {
		fmt.Printf("access token valid for %s (until %s)\n",
			remaining.Round(time.Second), exp.Format(time.RFC3339))
	} else {
		fmt.Printf("access token expired %s ago\n", (-time.Until(exp)).Round(time.Second))
	}
	return nil
}

func printUser(user *api.User) {
	fmt.Printf("id:    %s\n", user.ID)
	fmt.Printf("email: %s\n", user.Email)
	fmt.Printf("roles: %v\n", user.Roles)
}
