package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/najdeno/internal/api"
	"github.com/erazemk/najdeno/internal/cache"
	"github.com/erazemk/najdeno/internal/config"
	"github.com/erazemk/najdeno/internal/db"
	"github.com/erazemk/najdeno/internal/donation"
	"github.com/erazemk/najdeno/internal/lifecycle"
	"github.com/erazemk/najdeno/internal/matching"
	"github.com/erazemk/najdeno/internal/model"
	"github.com/erazemk/najdeno/internal/scheduler"
	"github.com/erazemk/najdeno/internal/store"
)

// levelRouter is a slog.Handler that routes INFO/WARN to stdout and ERROR+ to stderr.
type levelRouter struct {
	stdout slog.Handler
	stderr slog.Handler
}

func (lr *levelRouter) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo
}

func (lr *levelRouter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return lr.stderr.Handle(ctx, r)
	}
	return lr.stdout.Handle(ctx, r)
}

func (lr *levelRouter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelRouter{
		stdout: lr.stdout.WithAttrs(attrs),
		stderr: lr.stderr.WithAttrs(attrs),
	}
}

func (lr *levelRouter) WithGroup(name string) slog.Handler {
	return &levelRouter{
		stdout: lr.stdout.WithGroup(name),
		stderr: lr.stderr.WithGroup(name),
	}
}

// setupLogger configures structured logging. INFO/WARN go to stdout, ERROR goes
// to stderr. If logPath is non-empty, all levels are also written to that file.
// Returns a cleanup function that closes the log file (if opened).
func setupLogger(logPath string) (func(), error) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	var cleanup func()

	stdoutW := io.Writer(os.Stdout)
	stderrW := io.Writer(os.Stderr)

	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		cleanup = func() { f.Close() }
		stdoutW = io.MultiWriter(os.Stdout, f)
		stderrW = io.MultiWriter(os.Stderr, f)
	}

	handler := &levelRouter{
		stdout: slog.NewTextHandler(stdoutW, opts),
		stderr: slog.NewTextHandler(stderrW, opts),
	}
	slog.SetDefault(slog.New(handler))
	return cleanup, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fs := flag.NewFlagSet("najdeno", flag.ContinueOnError)

	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "")
	fs.StringVar(&cfg.DBPath, "d", cfg.DBPath, "")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "")
	fs.StringVar(&cfg.Addr, "a", cfg.Addr, "")
	fs.StringVar(&cfg.AdminUser, "user", cfg.AdminUser, "")
	fs.StringVar(&cfg.AdminUser, "u", cfg.AdminUser, "")
	fs.StringVar(&cfg.LogPath, "log", cfg.LogPath, "")
	fs.StringVar(&cfg.LogPath, "l", cfg.LogPath, "")
	fs.DurationVar(&cfg.Interval, "interval", cfg.Interval, "")
	fs.DurationVar(&cfg.Interval, "i", cfg.Interval, "")
	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "")
	fs.StringVar(&cfg.RedisAddr, "r", cfg.RedisAddr, "")

	fs.Usage = func() {
		fmt.Fprint(os.Stdout, `Usage: najdeno [flags]

Flags:
  -d, -db <path>          SQLite database path (default: najdeno.sqlite3)
  -a, -addr <host:port>   listen address (default: :8080)
  -u, -user <name>        admin username on first run (default: Admin)
  -l, -log <path>         log file path (default: no file, stdout/stderr only)
  -i, -interval <dur>     donation scan and matching sweep interval, 0 disables (default: 5m)
  -r, -redis <host:port>  Redis address for match publishing and job locks (default: none)
  -h, -help               show this help and exit

Flags override NAJDENO_* environment variables, which may also be set in .env.
`)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "unexpected argument: %s\n", fs.Arg(0))
		fs.Usage()
		os.Exit(1)
	}

	closeLog, err := setupLogger(cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if closeLog != nil {
		defer closeLog()
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		slog.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	slog.Info("database ready", "path", cfg.DBPath)

	password, err := bootstrapAdmin(context.Background(), database, cfg.AdminUser)
	if err != nil {
		slog.Error("failed to create admin user", "error", err)
		os.Exit(1)
	}
	if password != "" {
		printInitResult(cfg.DBPath, cfg.AdminUser, password)
		fmt.Println()
	}

	jwtSecret, err := store.GetJWTSecret(context.Background(), database)
	if err != nil {
		slog.Error("failed to get JWT secret", "error", err)
		os.Exit(1)
	}

	st := store.New(database)
	svc := lifecycle.New(st, st)

	// Background jobs stop when jobsCtx is cancelled on shutdown.
	jobsCtx, stopJobs := context.WithCancel(context.Background())
	defer stopJobs()

	var (
		publisher *cache.MatchPublisher
		locker    scheduler.Locker
		snapshots api.MatchSnapshots
	)
	if cfg.RedisAddr != "" {
		rdb, err := cache.Connect(jobsCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		// Twice the interval so a snapshot outlives one missed sweep.
		publisher = cache.NewMatchPublisher(rdb, 2*cfg.Interval)
		locker = scheduler.NewRedisLocker(rdb)
		snapshots = publisher
		slog.Info("redis connected", "addr", cfg.RedisAddr)
	}

	sched := newScheduler(cfg, st, svc, publisher, locker)
	sched.Start(jobsCtx)

	handler := api.LoggingMiddleware(api.NewRouter(database, jwtSecret, svc, snapshots))

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-quit
		slog.Info("shutdown signal received", "signal", sig.String())

		stopJobs()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", cfg.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	stopJobs()
	sched.Wait()
	slog.Info("server stopped, closing database")
}

// newScheduler wires the donation scan, the matching sweep, and the purge of
// expired token revocations. A non-nil publisher also receives every sweep.
// Each job records its last successful run.
func newScheduler(cfg config.Config, st *store.Store, svc *lifecycle.Service, publisher *cache.MatchPublisher, locker scheduler.Locker) *scheduler.Scheduler {
	scanner := &donation.Scanner{
		Items:     st,
		Lifecycle: svc,
		Now:       func() time.Time { return svc.Now() },
	}

	weights := matching.DefaultWeights()
	weights.Threshold = cfg.MatchThreshold
	weights.Max = cfg.MatchMax
	sweep := &matching.Sweep{
		Items:      st,
		Publishers: []matching.Publisher{st},
		Weights:    weights,
	}
	if publisher != nil {
		sweep.Publishers = append(sweep.Publishers, publisher)
	}

	recorded := func(name string, run func(ctx context.Context) error) scheduler.Job {
		return scheduler.Job{
			Name:     name,
			Interval: cfg.Interval,
			Run: func(ctx context.Context) error {
				if err := run(ctx); err != nil {
					return err
				}
				return store.RecordJobRun(ctx, st.DB, name, time.Now())
			},
		}
	}

	return scheduler.New(locker,
		recorded("donation-scan", func(ctx context.Context) error {
			_, err := scanner.Run(ctx)
			return err
		}),
		recorded("matching-sweep", func(ctx context.Context) error {
			_, err := sweep.Run(ctx)
			return err
		}),
		recorded("token-purge", func(ctx context.Context) error {
			n, err := store.PurgeRevokedTokens(ctx, st.DB, time.Now())
			if err == nil && n > 0 {
				slog.Info("purged expired token revocations", "count", n)
			}
			return err
		}),
	)
}

// bootstrapAdmin creates the admin account when the database has none and
// returns its generated password. It returns an empty password when an admin
// already exists.
func bootstrapAdmin(ctx context.Context, database *sql.DB, username string) (string, error) {
	n, err := store.CountAdmins(ctx, database)
	if err != nil {
		return "", err
	}
	if n > 0 {
		return "", nil
	}

	password, err := generatePassword(16)
	if err != nil {
		return "", fmt.Errorf("generating password: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}

	if _, err := store.CreateUser(ctx, database, username, string(hash), model.RoleAdmin); err != nil {
		return "", fmt.Errorf("creating admin user: %w", err)
	}
	return password, nil
}

// printInitResult prints the admin credentials created on first run.
func printInitResult(dbPath, username, password string) {
	fmt.Printf("Database initialized: %s\n", dbPath)
	fmt.Println()
	fmt.Println("Admin account created:")
	fmt.Printf("  Username: %s\n", username)
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("Save this password, it cannot be recovered.")
	fmt.Println("The admin can change it after logging in.")
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
