package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/service/mcp"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/usecase/chat"
)

func mcpCommand() *cli.Command {
	var (
		cfg      config
		httpAddr string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "http-addr",
			Usage:       "Serve streamable HTTP on this address instead of stdio",
			Sources:     cli.EnvVars("TUTOR_MCP_ADDR"),
			Destination: &httpAddr,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, geminiFlags(&cfg)...)
	flags = append(flags, indexFlags(&cfg)...)
	flags = append(flags, repositoryFlags(&cfg)...)

	return &cli.Command{
		Name:  "mcp",
		Usage: "Expose the textbook tools over the Model Context Protocol",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			// Logs go to stderr; stdout belongs to the stdio transport.
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

			gemini, err := cfg.newGemini(ctx)
			if err != nil {
				return err
			}

			uc := chat.New(chat.NewInput{
				Repo:   repo,
				Gemini: gemini,
				Index:  index,
			})

			srv, err := mcp.New(mcp.NewInput{Chat: uc})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if httpAddr != "" {
				return srv.RunHTTP(ctx, httpAddr)
			}
			return srv.Run(ctx)
		},
	}
}
