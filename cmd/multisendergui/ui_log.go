package main

import (
	"encoding/json"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"go.uber.org/zap/zapcore"
)

// ensureLogWindow creates or returns the log window.
func ensureLogWindow(a fyne.App) fyne.Window {
	if logWin != nil {
		return logWin
	}
	logWin = a.NewWindow("Logs")
	logWin.SetOnClosed(func() { logWin = nil })
	logProg = widget.NewProgressBar()
	logProgLbl = widget.NewLabel("")
	exportBtn := widget.NewButtonWithIcon("Export Telemetry JSON", theme.DocumentSaveIcon(), func() {
		saveTelemetryJSON(a)
	})
	top := container.NewBorder(nil, nil, nil, exportBtn, container.NewHBox(widget.NewLabel("Chunks:"), logProg, logProgLbl))
	bg := canvas.NewLinearGradient(color.NRGBA{12, 16, 24, 255}, color.NRGBA{20, 28, 40, 255}, 90)
	logBox = widget.NewMultiLineEntry()
	logBox.Disable()
	logBox.Wrapping = fyne.TextWrapWord
	logScroll = container.NewVScroll(logBox)
	logScroll.SetMinSize(fyne.NewSize(800, 180))
	logWin.SetContent(container.NewBorder(top, nil, nil, nil, container.NewStack(bg, logScroll)))
	logWin.Resize(fyne.NewSize(1000, 600))
	return logWin
}

// appendLogLine adds a timestamped line to the log.
func appendLogLine(a fyne.App, s string) {
	logMu.Lock()
	defer logMu.Unlock()
	w := ensureLogWindow(a)
	logBox.SetText(logBox.Text + time.Now().Format("15:04:05 ") + s + "\n")
	if logScroll != nil {
		logScroll.ScrollToBottom()
	}
	w.Canvas().Refresh(logBox)
}

func setProgress(done, total int) {
	logMu.Lock()
	defer logMu.Unlock()
	if logProg != nil {
		logProg.Min, logProg.Max = 0, float64(total)
		logProg.SetValue(float64(done))
	}
	if logProgLbl != nil {
		logProgLbl.SetText(fmt.Sprintf("%d/%d", done, total))
	}
}

// logHook mirrors warn-and-above zap entries into the log window.
func logHook(a fyne.App) func(zapcore.Entry) error {
	return func(e zapcore.Entry) error {
		if e.Level >= zapcore.WarnLevel {
			appendLogLine(a, fmt.Sprintf("[%s] %s", e.Level.CapitalString(), e.Message))
		}
		return nil
	}
}

// saveTelemetryJSON writes telemetry to a timestamped JSON file next to the executable.
func saveTelemetryJSON(a fyne.App) {
	ts := time.Now().Format("20060102_150405")
	exe, _ := os.Executable()
	dir := filepath.Join(filepath.Dir(exe), "log_data")
	_ = os.MkdirAll(dir, 0o755)
	path := filepath.Join(dir, ts+".json")
	out := map[string]any{
		"generatedAt": time.Now().UTC().Format(time.RFC3339),
		"telemetry":   telSnapshot(),
	}
	f, err := os.Create(path)
	if err != nil {
		a.SendNotification(&fyne.Notification{Title: "Save error", Content: err.Error()})
		return
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
	a.SendNotification(&fyne.Notification{Title: "Saved", Content: path})
}
