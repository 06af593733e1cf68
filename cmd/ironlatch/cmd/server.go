package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/jmcleod/ironlatch/api"
	"github.com/jmcleod/ironlatch/auth"
	"github.com/jmcleod/ironlatch/internal/config"
	bboltstorage "github.com/jmcleod/ironlatch/storage/bbolt"
)

var trustedProxies []string

// limiterSweepInterval paces the rate-limiter hygiene sweep. Stale records
// are also dropped lazily on re-probe, so the exact cadence is not critical.
const limiterSweepInterval = 5 * time.Minute

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the session management server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}

		store, err := bboltstorage.NewStoreFromFile(cfg.DataDir+"/ironlatch.db", nil)
		if err != nil {
			return fmt.Errorf("failed to open session storage: %w", err)
		}
		defer store.Close()

		svc := auth.NewService(store, auth.Config{
			IdleWindow:        cfg.IdleWindow,
			RenewalThrottle:   cfg.RenewalThrottle,
			MinPasswordLength: cfg.MinPasswordLength,
			ResetTokenTTL:     cfg.ResetTokenTTL,
			ResetSecret:       cfg.ResetSecret,
			AdminEmails:       cfg.AdminEmails,
			DefaultRole:       auth.Role(cfg.DefaultRole),
			DefaultPlan:       cfg.DefaultPlan,
			ResetBaseURL:      cfg.ResetBaseURL,
		}, auth.WithLogger(logger))

		if cfg.SweepInterval > 0 {
			svc.Sessions().StartSweeper(cfg.SweepInterval, logger)
			defer svc.Sessions().StopSweeper()
		}

		proxies, err := parseTrustedProxies(trustedProxies)
		if err != nil {
			return err
		}

		a := api.New(svc,
			api.WithLogger(logger),
			api.WithCookieName(cfg.CookieName),
			api.WithTrustedProxies(proxies),
			api.WithAlertFunc(func(ev api.AlertEvent) {
				logger.Warn("anomaly alert",
					"type", string(ev.Type),
					"message", ev.Message,
					"count", ev.Count,
					"threshold", ev.Threshold)
			}),
		)
		a.StartLimiterSweeper(limiterSweepInterval)
		defer a.StopLimiterSweeper()

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)
		r.Use(api.SecurityHeaders)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		r.Mount("/api/v1", a.Router())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		useTLS := cfg.TLSCert != "" && cfg.TLSKey != ""
		if useTLS {
			cert, err := tls.LoadX509KeyPair(cfg.TLSCert, cfg.TLSKey)
			if err != nil {
				return fmt.Errorf("failed to load TLS key pair: %w", err)
			}
			server.TLSConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			var err error
			if useTLS {
				err = server.ListenAndServeTLS("", "")
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner()
		fmt.Printf("Starting server on port %d (data: %s)...\n", cfg.Port, cfg.DataDir)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			fmt.Printf("\nReceived %s, shutting down...\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func parseTrustedProxies(raw []string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, s := range raw {
		// Accept both bare addresses and CIDR ranges.
		if addr, err := netip.ParseAddr(s); err == nil {
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", s, err)
		}
		prefixes = append(prefixes, prefix)
	}
	return prefixes, nil
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().StringSliceVar(&trustedProxies, "trusted-proxies", nil,
		"CIDR ranges whose proxy headers are trusted for client IP resolution")
}
