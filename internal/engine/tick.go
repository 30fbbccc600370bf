// Heartbeat drives periodic work that is not owned by any agent:
// auto-explore deployment, status reports and journal flushes.
package engine

import (
	"log/slog"
	"sync"
	"time"
)

// Heartbeat ticks on a fixed interval, independent of the agent step speed.
type Heartbeat struct {
	Beat        uint64        // Beats so far; only touched by Run
	Interval    time.Duration // Time between beats
	ReportEvery uint64        // OnReport fires every N beats; 0 disables it

	OnBeat   func(beat uint64) // Every beat
	OnReport func(beat uint64) // Every ReportEvery beats

	stop     chan struct{}
	stopOnce sync.Once
}

// NewHeartbeat creates a heartbeat with the given interval.
func NewHeartbeat(interval time.Duration) *Heartbeat {
	if interval <= 0 {
		interval = time.Second
	}
	return &Heartbeat{
		Interval: interval,
		stop:     make(chan struct{}),
	}
}

// Run beats until Stop is called.
func (h *Heartbeat) Run() {
	slog.Info("heartbeat started", "interval", h.Interval)

	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			slog.Info("heartbeat stopped", "beat", h.Beat)
			return
		case <-ticker.C:
			h.beat()
		}
	}
}

// Stop ends Run. Safe to call more than once.
func (h *Heartbeat) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

func (h *Heartbeat) beat() {
	h.Beat++

	if h.OnBeat != nil {
		h.OnBeat(h.Beat)
	}
	if h.ReportEvery > 0 && h.Beat%h.ReportEvery == 0 && h.OnReport != nil {
		h.OnReport(h.Beat)
	}
}
