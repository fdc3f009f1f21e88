package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/ligun0805/multisender/internal/app"
	"github.com/ligun0805/multisender/internal/logging"
)

// session is an opened app.Env plus the signal-aware context of one command.
type session struct {
	*app.Env
	ctx  context.Context
	stop context.CancelFunc
}

// openSession builds the environment for a networked command. action names the per-run
// log file under logs/; needKey prompts for a key on a terminal when none is configured.
func openSession(c *cli.Context, action string, needKey bool) (*session, error) {
	st, err := loadSettings(c)
	if err != nil {
		return nil, err
	}
	var paths []string
	if action != "" {
		paths = append(paths, logging.RunLogPath("logs", action, time.Now()))
	}
	log, err := logging.Logger(st.LogLevel, paths...)
	if err != nil {
		return nil, err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	env, err := app.Open(ctx, st, log)
	if err != nil {
		stop()
		return nil, err
	}
	if needKey && env.Signer == nil && isTerminal() {
		key, err := readPassword(c.App.ErrWriter, "Private key (hidden): ")
		if err == nil && key != "" {
			err = env.SetKey(key)
		}
		if err != nil {
			env.Close()
			stop()
			return nil, err
		}
	}
	env.Metrics.Serve(ctx, st.MetricsAddr, log.Named("metrics"))
	return &session{Env: env, ctx: ctx, stop: stop}, nil
}

func (s *session) Close() {
	if err := s.Env.Close(); err != nil {
		s.Log.Warn("close", zap.Error(err))
	}
	_ = s.Log.Sync()
	s.stop()
}
