// Command licensed wires config → store → activation engine → httpapi,
// the teacher's cmd/server/main.go shape generalized from a Discord-clone
// backend to the licensing server described by C8/C9.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/clk-66/licensecore/internal/activation"
	"github.com/clk-66/licensecore/internal/config"
	"github.com/clk-66/licensecore/internal/db"
	"github.com/clk-66/licensecore/internal/feed"
	"github.com/clk-66/licensecore/internal/httpapi"
	"github.com/clk-66/licensecore/internal/secrets"
	"github.com/clk-66/licensecore/internal/store/cache"
	"github.com/clk-66/licensecore/internal/store/sqlitestore"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg := config.Load()

	secs, err := loadOrInitSecrets(cfg)
	if err != nil {
		slog.Error("load secrets", "err", err)
		os.Exit(1)
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		slog.Error("open database", "err", err)
		os.Exit(1)
	}
	defer database.Close()

	st := sqlitestore.New(database)

	var opts []activation.Option
	opts = append(opts,
		activation.WithReclaimInterval(cfg.ReclaimInterval),
		activation.WithReclaimTimeout(cfg.ReclaimTimeout),
		activation.WithHeartbeatTTL(cfg.HeartbeatTTL),
	)

	activationFeed := feed.New(cfg.Domain)
	go activationFeed.Run()
	opts = append(opts, activation.WithEventSink(activationFeed))

	if cfg.RedisURL != "" {
		redisCache, err := cache.Connect(context.Background(), cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			slog.Warn("redis cache unavailable, continuing without it", "err", err)
		} else {
			defer redisCache.Close()
			opts = append(opts, activation.WithCache(redisCache))
		}
	}

	eng, err := activation.NewEngine(st, secs.PrivateKey, secs.PublicKey, opts...)
	if err != nil {
		slog.Error("construct activation engine", "err", err)
		os.Exit(1)
	}

	reclaimCtx, cancelReclaim := context.WithCancel(context.Background())
	defer cancelReclaim()
	eng.StartReclamation(reclaimCtx)
	defer eng.StopReclamation()

	router := httpapi.NewRouter(eng, activationFeed, httpapi.Config{
		APIKey:         cfg.APIKey,
		AllowedOrigins: []string{"https://" + cfg.Domain, "http://" + cfg.Domain},
		JWTSecret:      cfg.JWTSecret,
	})

	slog.Info("licensed server listening", "port", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

// loadOrInitSecrets loads the secrets file at cfg.SecretsPath, generating
// and saving a fresh one on first run (§6.2's setup-utility lifecycle).
func loadOrInitSecrets(cfg *config.Config) (*secrets.Secrets, error) {
	if cfg.SecretsPassphrase == "" {
		slog.Error("LICENSED_SECRETS_PASSPHRASE must be set")
		os.Exit(1)
	}

	if _, err := os.Stat(cfg.SecretsPath); err == nil {
		return secrets.Load(cfg.SecretsPath, cfg.SecretsPassphrase)
	}

	slog.Info("no secrets file found, generating one", "path", cfg.SecretsPath)
	secs, file, err := secrets.Generate(cfg.SecretsPassphrase)
	if err != nil {
		return nil, err
	}
	if err := secrets.Save(cfg.SecretsPath, file); err != nil {
		return nil, err
	}
	return secs, nil
}
