package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tonearm/tonearm/internal/auth"
	"github.com/tonearm/tonearm/internal/identity"
	"github.com/tonearm/tonearm/internal/logger"
	"github.com/tonearm/tonearm/internal/server"
	"github.com/tonearm/tonearm/internal/store"
	memorystore "github.com/tonearm/tonearm/internal/store/memory"
	postgresstore "github.com/tonearm/tonearm/internal/store/postgres"
	redisstore "github.com/tonearm/tonearm/internal/store/redis"
)

type ServerCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"TONEARM_LISTEN"`
	Cert   string `help:"path to TLS cert file" default:"" env:"TONEARM_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"TONEARM_TLS_KEY"`

	// Token and session configuration
	SigningKey      string        `help:"secret key for HMAC signing of session tokens" env:"TONEARM_SIGNING_KEY"`
	TokenTTL        time.Duration `help:"signed token lifetime" default:"15m" env:"TONEARM_TOKEN_TTL"`
	SessionTTL      time.Duration `help:"session sliding-window TTL" default:"720h" env:"TONEARM_SESSION_TTL"`
	AdminSecretHash string        `help:"argon2id hash of the static admin secret (see hash-secret)" default:"" env:"TONEARM_ADMIN_SECRET_HASH"`
	SweepInterval   time.Duration `help:"interval between expired-session sweeps" default:"1h" env:"TONEARM_SWEEP_INTERVAL"`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"TONEARM_STORE_TYPE" enum:"memory,postgres"`
	SessionStore  string             `help:"session store backend; 'store' follows --store-type" default:"store" env:"TONEARM_SESSION_STORE" enum:"store,redis"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
	Redis         RedisFlags         `embed:"" prefix:"redis-"`
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"5"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"TONEARM_POSTGRES_AUTO_MIGRATE"`
}

type RedisFlags struct {
	Addr     string `help:"redis address" default:"localhost:6379" env:"TONEARM_REDIS_ADDR"`
	Password string `help:"redis password" default:"" env:"TONEARM_REDIS_PASSWORD"`
	DB       int    `help:"redis database number" default:"0" env:"TONEARM_REDIS_DB"`
}

func (c *ServerCmd) Validate() error {
	if c.SigningKey == "" {
		return errors.New("signing key is required (--signing-key or TONEARM_SIGNING_KEY)")
	}
	if len(c.SigningKey) < 32 {
		return errors.New("signing key must be at least 32 bytes (256 bits) for HMAC-SHA256")
	}
	if c.StoreType == "postgres" && c.PostgresStore.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (c *ServerCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Dev)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("dev", globals.Dev).Msg("Starting server")

	hasher := auth.NewHasher(auth.DefaultHashParams())

	codec, err := auth.NewTokenCodec([]byte(c.SigningKey), c.TokenTTL)
	if err != nil {
		return fmt.Errorf("failed to create token codec: %w", err)
	}

	// Create stores based on store type
	var (
		principalStore store.PrincipalStore
		sessionStore   store.SessionStore
		apiTokenStore  store.APITokenStore
	)

	switch c.StoreType {
	case "postgres":
		pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
			ConnString:      c.PostgresStore.ConnString,
			MaxConns:        c.PostgresStore.MaxConns,
			MinConns:        c.PostgresStore.MinConns,
			MaxConnLifetime: c.PostgresStore.MaxConnLifetime,
			MaxConnIdleTime: c.PostgresStore.MaxConnIdleTime,
			AutoMigrate:     c.PostgresStore.AutoMigrate,
		})
		if err != nil {
			return fmt.Errorf("failed to create connection pool: %w", err)
		}
		defer pool.Close()

		principalStore = postgresstore.NewPrincipalStore(pool)
		sessionStore = postgresstore.NewSessionStore(pool)
		apiTokenStore = postgresstore.NewAPITokenStore(pool)

		log.Info().Msg("Using PostgreSQL stores with shared connection pool")

	default:
		principalStore = memorystore.NewPrincipalStore()
		sessionStore = memorystore.NewSessionStore()
		apiTokenStore = memorystore.NewAPITokenStore()
		log.Warn().Msg("Using in-memory stores; all state is lost on restart")
	}

	// Sessions can live in redis regardless of where the durable rows are.
	if c.SessionStore == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		})
		defer func() {
			if err := client.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close redis client")
			}
		}()

		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}

		sessionStore = redisstore.NewSessionStore(client)
		log.Info().Str("addr", c.Redis.Addr).Msg("Using redis session store")
	}

	if c.AdminSecretHash == "" {
		log.Warn().Msg("No admin secret configured; admin routes are reachable only via admin-role sessions")
	}

	service := identity.NewService(hasher, codec, principalStore, sessionStore, c.SessionTTL)
	tokens := identity.NewTokenService(hasher, apiTokenStore)
	resolver := auth.NewResolver(hasher, codec, sessionStore, apiTokenStore, c.AdminSecretHash)

	sweeper := identity.NewSweeper(ctx, sessionStore, c.SweepInterval)
	defer sweeper.Stop()

	handler := server.NewServer(service, tokens, resolver).Handler(log)
	httpServer := configureHTTPServer(c.Listen, handler)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("listen", c.Listen).Msg("HTTP server listening")
		if c.Cert != "" && c.Key != "" {
			errCh <- httpServer.ListenAndServeTLS(c.Cert, c.Key)
		} else {
			errCh <- httpServer.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
