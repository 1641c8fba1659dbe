package cli

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/server"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/usecase/chat"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/utils/logging"
)

func serveCommand() *cli.Command {
	var (
		cfg           config
		addr          string
		corsOrigins   string
		ratePerSecond float64
		rateBurst     int64
		anonymousChat bool
		evictInterval time.Duration
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Listen address",
			Value:       ":8080",
			Sources:     cli.EnvVars("TUTOR_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "cors-origins",
			Usage:       "Allowed CORS origins, comma separated ('*' for any)",
			Value:       "*",
			Sources:     cli.EnvVars("TUTOR_CORS_ORIGINS"),
			Destination: &corsOrigins,
		},
		&cli.FloatFlag{
			Name:        "rate-limit",
			Usage:       "Requests per second allowed per client",
			Value:       1,
			Sources:     cli.EnvVars("TUTOR_RATE_LIMIT"),
			Destination: &ratePerSecond,
		},
		&cli.IntFlag{
			Name:        "rate-burst",
			Usage:       "Burst size for the per-client rate limit",
			Value:       10,
			Sources:     cli.EnvVars("TUTOR_RATE_BURST"),
			Destination: &rateBurst,
		},
		&cli.BoolFlag{
			Name:        "anonymous-chat",
			Usage:       "Allow chat requests without a bearer token",
			Value:       true,
			Sources:     cli.EnvVars("TUTOR_ANONYMOUS_CHAT"),
			Destination: &anonymousChat,
		},
		&cli.DurationFlag{
			Name:        "evict-interval",
			Usage:       "How often idle sessions are swept",
			Value:       5 * time.Minute,
			Sources:     cli.EnvVars("TUTOR_EVICT_INTERVAL"),
			Destination: &evictInterval,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, geminiFlags(&cfg)...)
	flags = append(flags, indexFlags(&cfg)...)
	flags = append(flags, repositoryFlags(&cfg)...)
	flags = append(flags, analyticsFlags(&cfg)...)
	flags = append(flags, authFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Run the tutoring HTTP API",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg.setupLogging()

			// Initialize dependencies
			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			index, err := cfg.newIndex()
			if err != nil {
				return err
			}
			if err := index.Init(ctx); err != nil {
				return err
			}

			gemini, err := cfg.newGemini(ctx)
			if err != nil {
				return err
			}

			analytics, err := cfg.newAnalytics(ctx)
			if err != nil {
				return err
			}
			defer analytics.Close()

			verifier, err := cfg.newVerifier()
			if err != nil {
				return err
			}

			uc := chat.New(chat.NewInput{
				Repo:      repo,
				Gemini:    gemini,
				Index:     index,
				Analytics: analytics,
			})

			srv := server.New(server.NewInput{
				Chat:     uc,
				Repo:     repo,
				Index:    index,
				Verifier: verifier,
			},
				server.WithAddr(addr),
				server.WithCORSOrigins(splitOrigins(corsOrigins)),
				server.WithRateLimit(ratePerSecond, int(rateBurst)),
				server.WithAnonymousChat(anonymousChat),
			)

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Sweep idle sessions for as long as the server runs.
			go func() {
				ticker := time.NewTicker(evictInterval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						n, err := uc.EvictIdle(ctx)
						if err != nil {
							logging.Default().Warn("failed to evict idle sessions", "error", err)
						} else if n > 0 {
							logging.Default().Info("evicted idle sessions", "count", n)
						}
					}
				}
			}()

			return srv.Run(ctx)
		},
	}
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
