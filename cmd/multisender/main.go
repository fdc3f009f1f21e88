package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/ligun0805/multisender/internal/config"
)

var (
	// set via ldflags
	version = "dev"
	commit  = "unknown"
)

func main() {
	config.LoadDotenv()
	if err := newApp().Run(os.Args); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "multisender",
		Usage: "Send one ERC-20 token to many recipients through the multisender contract",
		Description: `Recipients are pasted or read from a file, one "address, amount" pair per line.
Commas, semicolons and whitespace all separate the two fields. Amounts are in token units.`,
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Commands: []*cli.Command{
			parseCommand(),
			balancesCommand(),
			approveCommand(),
			sendCommand(),
			historyCommand(),
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "rpc",
				Usage:   "JSON-RPC endpoint",
				EnvVars: []string{"RPC_URL"},
			},
			&cli.Int64Flag{
				Name:    "chain-id",
				Usage:   "Expected chain id (0 asks the node)",
				EnvVars: []string{"CHAIN_ID"},
			},
			&cli.StringFlag{
				Name:    "private-key",
				Usage:   "Wallet key in hex; prompted for when empty",
				EnvVars: []string{"PRIVATE_KEY"},
			},
			&cli.StringFlag{
				Name:    "networks",
				Usage:   "networks.yaml overriding the built-in contract/token list",
				EnvVars: []string{"NETWORKS_FILE"},
			},
			&cli.StringFlag{
				Name:    "network",
				Usage:   "Registry network (name or chain id); uses its rpc_url instead of --rpc",
				EnvVars: []string{"NETWORK"},
			},
			&cli.StringFlag{
				Name:    "indexer",
				Usage:   "Alchemy-compatible endpoint for token balances",
				EnvVars: []string{"INDEXER_URL"},
			},
			&cli.StringFlag{
				Name:    "journal",
				Usage:   "SQLite send history; empty disables it",
				EnvVars: []string{"JOURNAL_PATH"},
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "Serve Prometheus metrics on this address while running",
				EnvVars: []string{"METRICS_ADDR"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warn or error",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
	}
}
