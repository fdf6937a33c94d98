// Command server runs the wallet gateway: a per-session HTTP front-end
// that forwards wallet operations to a remote wallet service over Nostr
// Wallet Connect and mints Cashu ecash against a configured mint.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/humansinstitute/bush-starter/internal/api"
	"github.com/humansinstitute/bush-starter/internal/config"
	"github.com/humansinstitute/bush-starter/internal/metrics"
	"github.com/humansinstitute/bush-starter/internal/nwc"
	"github.com/humansinstitute/bush-starter/internal/session"
	"github.com/humansinstitute/bush-starter/internal/wallet"
	"github.com/humansinstitute/bush-starter/web"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log := zerolog.New(os.Stderr)
		log.Error().Err(err).Msg("gateway exited")
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()

	sessions := session.NewManager(func(conn *nwc.Connection) (session.WalletClient, error) {
		return nwc.New(conn,
			nwc.WithTimeout(cfg.NWCTimeout),
			nwc.WithLogger(log.With().Str("component", "nwc").Logger()))
	}, cfg.SessionTTL, log.With().Str("component", "session").Logger())
	defer sessions.Close()

	var ecash wallet.Ecash
	if cfg.MintURL != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return err
		}
		ecash, err = wallet.NewEcash(cfg.DataDir, cfg.MintURL)
		if err != nil {
			return err
		}
		log.Info().Str("mint", cfg.MintURL).Msg("ecash wallet ready")
	} else {
		log.Warn().Msg("no mint configured, ecash operations disabled")
	}

	svc := wallet.NewService(sessions, ecash, log.With().Str("component", "wallet").Logger())

	cookieSecret := []byte(cfg.CookieSecret)
	if len(cookieSecret) == 0 {
		cookieSecret = make([]byte, 32)
		if _, err := rand.Read(cookieSecret); err != nil {
			return err
		}
	}

	server, err := api.NewServer(api.Options{
		Wallet:            svc,
		Sessions:          sessions,
		Metrics:           metrics.New(sessions.Len),
		Log:               log.With().Str("component", "http").Logger(),
		CookieSecret:      cookieSecret,
		Password:          cfg.Password,
		DefaultConnection: cfg.NWCConnection,
		Static:            web.Static(),
		RatePerSecond:     cfg.RatePerSecond,
		RateBurst:         cfg.RateBurst,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("gateway listening")
		errc <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errc:
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
