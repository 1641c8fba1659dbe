package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
)

func sessionsCommand() *cli.Command {
	var (
		cfg    config
		userID string
		offset int64
		limit  int64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "User ID whose sessions to list",
			Sources:     cli.EnvVars("TUTOR_USER_ID"),
			Destination: &userID,
			Required:    true,
		},
		&cli.IntFlag{
			Name:        "offset",
			Usage:       "Number of sessions to skip",
			Destination: &offset,
		},
		&cli.IntFlag{
			Name:        "limit",
			Usage:       "Maximum number of sessions to show",
			Value:       20,
			Destination: &limit,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, repositoryFlags(&cfg)...)

	return &cli.Command{
		Name:  "sessions",
		Usage: "List a user's conversation sessions",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg.setupLogging()

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			sessions, err := repo.ListSessions(ctx, userID, int(offset), int(limit))
			if err != nil {
				return err
			}

			if len(sessions) == 0 {
				fmt.Fprintf(c.Root().Writer, "No sessions found\n")
				return nil
			}

			for _, session := range sessions {
				status := "active"
				if session.Archived {
					status = "archived"
				}
				fmt.Fprintf(c.Root().Writer, "%s\t%s\t%d msgs\t%s\t%s\n",
					session.ID,
					session.Title,
					session.MessageCount,
					session.LastActiveAt.Format(time.RFC3339),
					status)
			}
			return nil
		},
	}
}
