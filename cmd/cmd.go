// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print output",
		},
	}
}

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize local configuration",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write an example config.toml",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupConfig,
			},
		},
	}
}

// authCommand handles Mailchimp authentication
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Mailchimp authentication",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Authorize listsync with OAuth2 and store the access token",
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{
						Name:  "no-browser",
						Usage: "Print the authorization URL instead of opening a browser",
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Verify credentials and show the resolved datacenter",
				Flags:  append([]cli.Flag{configFlag()}, outputFlags()...),
				Action: r.AuthStatus,
			},
		},
	}
}

// listCommand inspects the configured audience
func listCommand(r *Runner) *cli.Command {
	flags := append([]cli.Flag{configFlag()}, outputFlags()...)
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "Inspect the target list",
		Commands: []*cli.Command{
			{
				Name:   "info",
				Usage:  "Show the list name and member counts",
				Flags:  flags,
				Action: r.ListInfo,
			},
			{
				Name:   "categories",
				Usage:  "Show interest categories and their interests",
				Flags:  flags,
				Action: r.ListCategories,
			},
			{
				Name:   "merge-fields",
				Usage:  "Show merge field tags and types",
				Flags:  flags,
				Action: r.ListMergeFields,
			},
		},
	}
}

// syncCommand pushes source rows to the list
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Upsert rows from a source into the list",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "source-type",
				Usage: "Source type: csv, sqlite, postgres or s3",
			},
			&cli.StringFlag{
				Name:    "path",
				Aliases: []string{"p"},
				Usage:   "CSV or SQLite file path",
			},
			&cli.StringFlag{
				Name:    "query",
				Aliases: []string{"q"},
				Usage:   "SQL query for database sources",
			},
			&cli.StringFlag{
				Name:  "dsn",
				Usage: "PostgreSQL connection string",
			},
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Maximum members per request (1-500)",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Transform and batch rows without pushing",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Show live progress in an interactive view",
			},
			&cli.StringFlag{
				Name:    "report",
				Aliases: []string{"o"},
				Usage:   "Write the run report (.json, .csv, .md or .txt)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
		},
		Action: r.Sync,
	}
}
