// Command multisendergui is the desktop front end of the multisender.
package main

import (
	"context"
	"fmt"
	"time"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/widget"
	"go.uber.org/zap"

	"github.com/ligun0805/multisender/internal/app"
	"github.com/ligun0805/multisender/internal/config"
	"github.com/ligun0805/multisender/internal/logging"
)

func main() {
	hideConsoleWindow()
	config.LoadDotenv()

	a := fyneapp.New()
	d := loadDraft()
	mode := d.Theme
	if mode == "" {
		mode = "dark"
	}
	a.Settings().SetTheme(makeTheme(mode, false))

	w := a.NewWindow("MultiSender")
	w.Resize(fyne.NewSize(900, 820))

	st, err := config.Load()
	if err == nil {
		err = st.Validate()
	}
	if err != nil {
		fatal(w, err)
		return
	}

	log, err := logging.Logger(st.LogLevel, logging.RunLogPath("logs", "gui", time.Now()))
	if err != nil {
		fatal(w, err)
		return
	}
	log = log.WithOptions(zap.Hooks(logHook(a)))

	ctx, cancel := context.WithCancel(context.Background())
	env, err := app.Open(ctx, st, log)
	if err != nil {
		cancel()
		fatal(w, err)
		return
	}
	env.Metrics.Serve(ctx, st.MetricsAddr, log.Named("metrics"))

	p := newPage(a, w, env, d)
	w.SetContent(p.build())
	w.SetOnClosed(func() {
		p.run.stop()
		if err := saveDraft(p.draft()); err != nil {
			log.Warn("save draft", zap.Error(err))
		}
		if logWin != nil {
			logWin.Close()
			logWin = nil
		}
		cancel()
		if err := env.Close(); err != nil {
			log.Warn("close", zap.Error(err))
		}
		_ = log.Sync()
	})
	p.start(ctx)
	w.ShowAndRun()
}

// fatal shows a startup error in place of the page.
func fatal(w fyne.Window, err error) {
	msg := widget.NewLabel(fmt.Sprintf("MultiSender could not start:\n\n%v", err))
	msg.Wrapping = fyne.TextWrapWord
	w.SetContent(msg)
	w.ShowAndRun()
}
