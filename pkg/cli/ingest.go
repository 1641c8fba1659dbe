package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/usecase/ingest"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/utils/logging"
)

func ingestCommand() *cli.Command {
	var (
		cfg             config
		contentLocation string
		policyDir       string
		watch           bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "content",
			Aliases:     []string{"c"},
			Usage:       "Content directory or gs://bucket/prefix",
			Sources:     cli.EnvVars("TUTOR_CONTENT"),
			Destination: &contentLocation,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "policy",
			Usage:       "Directory of Rego admission policies",
			Sources:     cli.EnvVars("TUTOR_POLICY_DIR"),
			Destination: &policyDir,
		},
		&cli.BoolFlag{
			Name:        "watch",
			Aliases:     []string{"w"},
			Usage:       "Keep running and re-ingest documents as they change",
			Sources:     cli.EnvVars("TUTOR_WATCH"),
			Destination: &watch,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, geminiFlags(&cfg)...)
	flags = append(flags, indexFlags(&cfg)...)
	flags = append(flags, analyticsFlags(&cfg)...)

	return &cli.Command{
		Name:  "ingest",
		Usage: "Chunk, embed, and index course content",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg.setupLogging()

			// Initialize dependencies
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

			opts := []ingest.Option{
				ingest.WithAnalytics(analytics),
			}
			if policyDir != "" {
				policy, err := ingest.LoadPolicy(ctx, policyDir)
				if err != nil {
					return err
				}
				opts = append(opts, ingest.WithPolicy(policy))
			}

			uc := ingest.New(gemini, index, opts...)

			src, root, err := cfg.newSource(ctx, contentLocation)
			if err != nil {
				return err
			}

			sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
			sp.Suffix = " ingesting content..."
			sp.Start()
			result, err := uc.IngestSource(ctx, src)
			sp.Stop()
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "Ingested %d documents (%d chunks), skipped %d, failed %d\n",
				result.Ingested, result.ChunkCount, result.Skipped, len(result.Errors))
			for _, docErr := range result.Errors {
				fmt.Fprintf(c.Root().Writer, "  %s: %v\n", docErr.Path, docErr.Err)
			}

			if !watch {
				if len(result.Errors) > 0 {
					return goerr.New("some documents failed to ingest", goerr.V("count", len(result.Errors)))
				}
				return nil
			}
			if root == "" {
				return goerr.New("watch mode requires a local content directory")
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			logging.Default().Info("watching content tree", "root", root)
			return uc.Watch(ctx, root)
		},
	}
}
