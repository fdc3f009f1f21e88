package main

import (
	"context"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// Log window widgets, shared by every run.
var (
	logWin     fyne.Window
	logBox     *widget.Entry
	logProg    *widget.ProgressBar
	logProgLbl *widget.Label
	logScroll  *container.Scroll
	logMu      sync.Mutex
)

// runState guards the single in-flight send.
type runState struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

func (r *runState) begin(parent context.Context) (context.Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return nil, false
	}
	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	return ctx, true
}

func (r *runState) end() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

func (r *runState) stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return false
	}
	r.cancel()
	return true
}

func (r *runState) busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}
