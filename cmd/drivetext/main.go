package main

import (
	"fmt"
	"log"
	"os"

	"github.com/chmdznr/drivetext/pkg/version"
	"github.com/urfave/cli/v2"
)

func main() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"v"},
		Usage:   "print the version",
	}

	projectFlag := &cli.StringFlag{
		Name:     "project",
		Aliases:  []string{"p"},
		Usage:    "Project name",
		Required: true,
		EnvVars:  []string{"DRIVETEXT_PROJECT"},
	}

	app := &cli.App{
		Name:                 "drivetext",
		Usage:                "Mirror plain-text notes from Google Drive",
		Version:              version.Version,
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "Print detailed version information",
				Action: func(c *cli.Context) error {
					fmt.Printf("Version:    %s\n", version.Version)
					fmt.Printf("Git commit: %s\n", version.GitCommit)
					fmt.Printf("Built:      %s\n", version.BuildTime)
					return nil
				},
			},
			{
				Name:  "create",
				Usage: "Create a new sync project",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "name",
						Usage:    "Project name",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "credentials",
						Usage:    "Path to the OAuth client secret JSON downloaded from Google Cloud",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "local-dir",
						Usage: "Directory for downloaded notes (default: <name>-notes)",
					},
					&cli.StringFlag{
						Name:  "token",
						Usage: "Where to keep the OAuth token (default: <name>-token.json)",
					},
					&cli.StringFlag{
						Name:  "endpoint",
						Usage: "MinIO endpoint; when set with --bucket notes are mirrored to the bucket instead of --local-dir",
					},
					&cli.StringFlag{
						Name:  "bucket",
						Usage: "MinIO bucket name",
					},
					&cli.StringFlag{
						Name:  "folder",
						Usage: "Destination folder path in the bucket",
					},
					&cli.StringFlag{
						Name:    "access-key",
						Usage:   "MinIO access key",
						EnvVars: []string{"DRIVETEXT_ACCESS_KEY"},
					},
					&cli.StringFlag{
						Name:    "secret-key",
						Usage:   "MinIO secret key",
						EnvVars: []string{"DRIVETEXT_SECRET_KEY"},
					},
					&cli.BoolFlag{
						Name:  "insecure",
						Usage: "Connect to MinIO over plain HTTP",
					},
				},
				Action: createProject,
			},
			{
				Name:   "auth",
				Usage:  "Authorize access to Google Drive",
				Flags:  []cli.Flag{projectFlag},
				Action: authorize,
			},
			{
				Name:  "sync",
				Usage: "Download new and changed text files",
				Flags: []cli.Flag{
					projectFlag,
					&cli.DurationFlag{
						Name:  "watch",
						Usage: "Keep polling, starting at this interval (e.g. 30s)",
					},
					&cli.BoolFlag{
						Name:  "no-progress",
						Usage: "Do not show a progress bar",
					},
					&cli.BoolFlag{
						Name:  "no-keys",
						Usage: "Do not listen for q/Esc to cancel",
					},
					&cli.BoolFlag{
						Name:  "verbose",
						Usage: "Print every file decision",
					},
				},
				Action: startSync,
			},
			{
				Name:  "list",
				Usage: "List synchronized files, newest first",
				Flags: []cli.Flag{
					projectFlag,
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of entries",
					},
					&cli.StringFlag{
						Name:  "filter",
						Usage: "Only names containing this text",
					},
					&cli.StringFlag{
						Name:  "csv",
						Usage: "Write the listing to a CSV file",
					},
					&cli.StringFlag{
						Name:  "xlsx",
						Usage: "Write the listing to an Excel workbook",
					},
				},
				Action: listEntries,
			},
			{
				Name:  "show",
				Usage: "Print the content of a synchronized file",
				Flags: []cli.Flag{
					projectFlag,
					&cli.Int64Flag{
						Name:     "id",
						Usage:    "Entry ID as shown by list",
						Required: true,
					},
				},
				Action: showEntry,
			},
			{
				Name:      "new",
				Usage:     "Create a local note",
				ArgsUsage: "[TEXT]",
				Flags: []cli.Flag{
					projectFlag,
					&cli.StringFlag{
						Name:     "name",
						Usage:    "Note name; .txt is added when missing",
						Required: true,
					},
				},
				Action: newNote,
			},
			{
				Name:  "edit",
				Usage: "Show or edit the cells (paragraphs) of a file",
				Description: "Without an operation the cells are listed with their positions.\n" +
					"   Positions start at 0 and refer to the cells before the edit.",
				Flags: []cli.Flag{
					projectFlag,
					&cli.Int64Flag{
						Name:     "id",
						Usage:    "Entry ID as shown by list",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "set",
						Usage: "Replace the cell at this position with --text",
					},
					&cli.StringFlag{
						Name:  "text",
						Usage: "New cell content for --set",
					},
					&cli.IntFlag{
						Name:  "insert",
						Usage: "Insert an empty cell at this position",
					},
					&cli.IntSliceFlag{
						Name:  "delete",
						Usage: "Delete the cell at this position (repeatable)",
					},
					&cli.StringFlag{
						Name:  "append",
						Usage: "Add a cell with this content at the end",
					},
				},
				Action: editNote,
			},
			{
				Name:      "delete",
				Usage:     "Delete entries and their local copies",
				ArgsUsage: "[ID...]",
				Flags: []cli.Flag{
					projectFlag,
					&cli.Int64SliceFlag{
						Name:  "id",
						Usage: "Entry ID as shown by list (repeatable)",
					},
				},
				Action: deleteEntries,
			},
			{
				Name:   "status",
				Usage:  "Show project status",
				Flags:  []cli.Flag{projectFlag},
				Action: showStatus,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
