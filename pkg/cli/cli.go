package cli

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	// A missing .env file is fine; real environment variables always win.
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:  "tutor",
		Usage: "Retrieval-grounded tutor for the Physical AI & Humanoid Robotics textbook",
		Commands: []*cli.Command{
			serveCommand(),
			ingestCommand(),
			chatCommand(),
			searchCommand(),
			sessionsCommand(),
			mcpCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
