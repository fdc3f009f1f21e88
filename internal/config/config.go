package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
)

// Settings keeps all configuration options.
// Keys are read in UPPER_CASE; lower_case spellings from older .env files are accepted too.
type Settings struct {
	RPCURL        string `env:"RPC_URL" envDefault:"https://mainnet.base.org"`
	ChainID       int64  `env:"CHAIN_ID"` // 0: ask the node
	PrivateKeyHex string `env:"PRIVATE_KEY"`
	NetworksFile  string `env:"NETWORKS_FILE"`
	Network       string `env:"NETWORK"`     // registry name or chain id; replaces RPC_URL and CHAIN_ID
	IndexerURL    string `env:"INDEXER_URL"` // alchemy-compatible endpoint; empty means on-chain reads

	ChunkSize       int `env:"CHUNK_SIZE" envDefault:"120"`
	DefaultDecimals int `env:"DEFAULT_DECIMALS" envDefault:"18"`

	TipGwei      int64 `env:"TIP_GWEI" envDefault:"2"`
	BasefeeMul   int64 `env:"BASEFEE_MUL" envDefault:"2"`
	GasBufferPct int64 `env:"GAS_BUFFER_PCT" envDefault:"20"`

	ReceiptTimeout time.Duration `env:"RECEIPT_TIMEOUT" envDefault:"3m"`
	ReceiptPoll    time.Duration `env:"RECEIPT_POLL" envDefault:"2s"`
	RPCTimeout     time.Duration `env:"RPC_TIMEOUT" envDefault:"30s"`

	JournalPath string `env:"JOURNAL_PATH" envDefault:"logs/multisender.db"` // set empty to disable
	MetricsAddr string `env:"METRICS_ADDR"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadDotenv reads .env and then lets .env.local override it. Missing files are fine.
func LoadDotenv() {
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.local")
}

// Load reads settings from the process environment.
func Load() (Settings, error) {
	return LoadFrom(environ())
}

// LoadFrom parses settings from an explicit key/value map.
func LoadFrom(vars map[string]string) (Settings, error) {
	var st Settings
	if err := env.Parse(&st, env.Options{Environment: normalize(vars)}); err != nil {
		return Settings{}, fmt.Errorf("parse env: %w", err)
	}
	st.RPCURL = strings.TrimSpace(st.RPCURL)
	st.PrivateKeyHex = strings.TrimSpace(st.PrivateKeyHex)
	return st, nil
}

// Validate checks every field and reports all problems at once.
func (s Settings) Validate() error {
	var errs []string

	if s.RPCURL == "" {
		errs = append(errs, "RPC_URL is required")
	} else if u, err := url.Parse(s.RPCURL); err != nil || u.Host == "" {
		errs = append(errs, fmt.Sprintf("invalid RPC_URL %q", s.RPCURL))
	} else if !oneOf(u.Scheme, "http", "https", "ws", "wss") {
		errs = append(errs, fmt.Sprintf("invalid RPC_URL scheme %q: must be http(s) or ws(s)", u.Scheme))
	}
	if s.ChainID < 0 {
		errs = append(errs, fmt.Sprintf("invalid CHAIN_ID %d", s.ChainID))
	}
	if s.IndexerURL != "" {
		if u, err := url.Parse(s.IndexerURL); err != nil || u.Host == "" {
			errs = append(errs, fmt.Sprintf("invalid INDEXER_URL %q", s.IndexerURL))
		}
	}
	if s.ChunkSize < 1 || s.ChunkSize > 1000 {
		errs = append(errs, fmt.Sprintf("invalid CHUNK_SIZE %d: must be between 1 and 1000", s.ChunkSize))
	}
	if s.DefaultDecimals < 0 || s.DefaultDecimals > 77 {
		errs = append(errs, fmt.Sprintf("invalid DEFAULT_DECIMALS %d", s.DefaultDecimals))
	}
	if s.TipGwei < 0 {
		errs = append(errs, "TIP_GWEI must not be negative")
	}
	if s.BasefeeMul < 1 {
		errs = append(errs, "BASEFEE_MUL must be at least 1")
	}
	if s.GasBufferPct < 0 || s.GasBufferPct > 500 {
		errs = append(errs, fmt.Sprintf("invalid GAS_BUFFER_PCT %d", s.GasBufferPct))
	}
	if s.ReceiptPoll <= 0 {
		errs = append(errs, "RECEIPT_POLL must be positive")
	}
	if s.ReceiptTimeout < s.ReceiptPoll {
		errs = append(errs, fmt.Sprintf("RECEIPT_TIMEOUT (%v) cannot be shorter than RECEIPT_POLL (%v)", s.ReceiptTimeout, s.ReceiptPoll))
	}
	if s.RPCTimeout <= 0 {
		errs = append(errs, "RPC_TIMEOUT must be positive")
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(s.LogLevel)); err != nil {
		errs = append(errs, fmt.Sprintf("invalid LOG_LEVEL %q", s.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// MaskedKey returns the key with everything but the last four characters hidden.
func (s Settings) MaskedKey() string {
	k := strings.TrimPrefix(s.PrivateKeyHex, "0x")
	if len(k) <= 4 {
		return strings.Repeat("*", len(k))
	}
	return strings.Repeat("*", len(k)-4) + k[len(k)-4:]
}

func environ() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			out[k] = v
		}
	}
	return out
}

// normalize folds lower_case keys onto UPPER_CASE ones; an explicit UPPER_CASE value wins.
func normalize(vars map[string]string) map[string]string {
	out := make(map[string]string, len(vars))
	for k, v := range vars {
		if k == strings.ToUpper(k) {
			out[k] = v
		}
	}
	for k, v := range vars {
		up := strings.ToUpper(k)
		if _, ok := out[up]; !ok && strings.TrimSpace(v) != "" {
			out[up] = v
		}
	}
	return out
}

func oneOf(s string, opts ...string) bool {
	for _, o := range opts {
		if s == o {
			return true
		}
	}
	return false
}
