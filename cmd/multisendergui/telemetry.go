package main

import "sync"

// TelemetryItem is one status transition, exported from the log window as JSON.
type TelemetryItem struct {
	Time   string `json:"time"`
	Action string `json:"action"`
	Chunk  int    `json:"chunk,omitempty"`
	TxHash string `json:"txHash,omitempty"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

var (
	telemetry []TelemetryItem
	telMu     sync.Mutex
)

func telAdd(it TelemetryItem) {
	telMu.Lock()
	telemetry = append(telemetry, it)
	telMu.Unlock()
}

func telSnapshot() []TelemetryItem {
	telMu.Lock()
	defer telMu.Unlock()
	out := make([]TelemetryItem, len(telemetry))
	copy(out, telemetry)
	return out
}
