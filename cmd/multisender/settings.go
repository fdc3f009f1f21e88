package main

import (
	"github.com/urfave/cli/v2"

	"github.com/ligun0805/multisender/internal/config"
)

// loadSettings reads the environment and applies any global flag given on the command line.
func loadSettings(c *cli.Context) (config.Settings, error) {
	st, err := config.Load()
	if err != nil {
		return st, err
	}
	if c.IsSet("rpc") {
		st.RPCURL = c.String("rpc")
	}
	if c.IsSet("chain-id") {
		st.ChainID = c.Int64("chain-id")
	}
	if c.IsSet("private-key") {
		st.PrivateKeyHex = c.String("private-key")
	}
	if c.IsSet("networks") {
		st.NetworksFile = c.String("networks")
	}
	if c.IsSet("network") {
		st.Network = c.String("network")
	}
	if c.IsSet("indexer") {
		st.IndexerURL = c.String("indexer")
	}
	if c.IsSet("journal") {
		st.JournalPath = c.String("journal")
	}
	if c.IsSet("metrics-addr") {
		st.MetricsAddr = c.String("metrics-addr")
	}
	if c.IsSet("log-level") {
		st.LogLevel = c.String("log-level")
	}
	return st, st.Validate()
}
