package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/model"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/usecase/chat"
)

func chatCommand() *cli.Command {
	var (
		cfg       config
		sessionID string
		scope     string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "session",
			Aliases:     []string{"s"},
			Usage:       "Session ID to resume",
			Sources:     cli.EnvVars("TUTOR_SESSION_ID"),
			Destination: &sessionID,
		},
		&cli.StringFlag{
			Name:        "scope",
			Usage:       "Restrict retrieval to a section subtree, e.g. module-2",
			Sources:     cli.EnvVars("TUTOR_SECTION_SCOPE"),
			Destination: &scope,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, geminiFlags(&cfg)...)
	flags = append(flags, indexFlags(&cfg)...)
	flags = append(flags, repositoryFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Ask questions about the course material interactively",
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

			gemini, err := cfg.newGemini(ctx)
			if err != nil {
				return err
			}

			uc := chat.New(chat.NewInput{
				Repo:   repo,
				Gemini: gemini,
				Index:  index,
			})

			rl, err := readline.New("you> ")
			if err != nil {
				return goerr.Wrap(err, "failed to open prompt")
			}
			defer rl.Close()

			w := c.Root().Writer
			fmt.Fprintf(w, "Ask about the course material. Type 'exit' to quit.\n")

			id := model.SessionID(sessionID)
			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					continue
				}
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read input")
				}

				question := strings.TrimSpace(line)
				if question == "" {
					continue
				}
				if question == "exit" {
					break
				}

				input := &model.AskInput{
					Question:     question,
					SessionID:    id,
					SectionScope: scope,
					UserID:       "local",
				}

				var sources []model.SourceRef
				for frame, err := range uc.Ask(ctx, input) {
					if err != nil {
						fmt.Fprintf(w, "error: %v\n", err)
						break
					}
					switch frame.Type {
					case model.FrameSources:
						sources = frame.Sources
					case model.FrameChunk:
						fmt.Fprint(w, frame.Text)
					case model.FrameDone:
						id = frame.SessionID
						fmt.Fprintf(w, "\n")
						for _, src := range sources {
							fmt.Fprintf(w, "  source: %s (%.2f)\n", src.SectionPath, src.Score)
						}
					}
				}
			}

			if id != "" {
				fmt.Fprintf(w, "\nSession: %s\n", id)
			}
			return nil
		},
	}
}
