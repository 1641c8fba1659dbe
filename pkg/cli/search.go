package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/model"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/repository"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/usecase/chat"
)

func searchCommand() *cli.Command {
	var (
		cfg   config
		query string
		limit int64
		kind  string
		scope string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "query",
			Aliases:     []string{"q"},
			Usage:       "Search query",
			Destination: &query,
			Required:    true,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"l"},
			Usage:       "Maximum number of results",
			Value:       5,
			Destination: &limit,
		},
		&cli.StringFlag{
			Name:        "kind",
			Usage:       "Restrict results to a content kind (narrative, code, exercise, summary)",
			Destination: &kind,
		},
		&cli.StringFlag{
			Name:        "scope",
			Usage:       "Restrict results to a section subtree, e.g. module-2",
			Destination: &scope,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, geminiFlags(&cfg)...)
	flags = append(flags, indexFlags(&cfg)...)

	return &cli.Command{
		Name:  "search",
		Usage: "Search the content index without generating an answer",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg.setupLogging()

			// Initialize dependencies
			index, err := cfg.newIndex()
			if err != nil {
				return err
			}

			gemini, err := cfg.newGemini(ctx)
			if err != nil {
				return err
			}

			uc := chat.New(chat.NewInput{
				Repo:   repository.NewMemory(),
				Gemini: gemini,
				Index:  index,
			})

			var contentKind model.ContentKind
			if kind != "" {
				contentKind, err = model.ParseContentKind(kind)
				if err != nil {
					return err
				}
			}

			results, err := uc.Search(ctx, chat.SearchInput{
				Query:        query,
				Limit:        int(limit),
				Kind:         contentKind,
				SectionScope: scope,
			})
			if err != nil {
				return err
			}

			if len(results) == 0 {
				fmt.Fprintf(c.Root().Writer, "No passages matched.\n")
				return nil
			}

			for i, ev := range results {
				fmt.Fprintf(c.Root().Writer, "%2d. %.3f  %s  (%s, chunk %d)\n",
					i+1, ev.Score, ev.Chunk.SectionPath, ev.Chunk.Kind, ev.Chunk.Ordinal)
				fmt.Fprintf(c.Root().Writer, "    %s\n", snippet(ev.Chunk.Text, 120))
			}
			return nil
		},
	}
}

// snippet collapses whitespace and truncates text for one-line display.
func snippet(text string, max int) string {
	flat := strings.Join(strings.Fields(text), " ")
	runes := []rune(flat)
	if len(runes) <= max {
		return flat
	}
	return string(runes[:max]) + "..."
}
