package sync

import (
	"context"
	"time"
)

// startupDelay lets the rest of the process come up before the first sweep
const startupDelay = 5 * time.Second

type driver struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Start runs FullSync every Interval until Stop is called
func (e *Engine) Start(ctx context.Context) {
	if !e.cfg.Enabled {
		e.log.Info().Msg("ERP sync driver disabled")
		return
	}

	e.driverMu.Lock()
	defer e.driverMu.Unlock()
	if e.driver != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	d := &driver{cancel: cancel, done: make(chan struct{})}
	e.driver = d

	interval := e.cfg.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	go func() {
		defer close(d.done)
		e.log.Info().Dur("interval", interval).Msg("📡 ERP sync driver started")

		if e.cfg.OnStartup {
			select {
			case <-time.After(startupDelay):
				e.runSweep(ctx)
			case <-ctx.Done():
				return
			}
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				e.runSweep(ctx)
			case <-ctx.Done():
				e.log.Info().Msg("🛑 ERP sync driver stopped")
				return
			}
		}
	}()
}

// Stop halts the driver and waits for a running sweep to return
func (e *Engine) Stop() {
	e.driverMu.Lock()
	d := e.driver
	e.driver = nil
	e.driverMu.Unlock()

	if d == nil {
		return
	}
	d.cancel()
	<-d.done
}

func (e *Engine) runSweep(ctx context.Context) {
	if _, err := e.FullSync(ctx, 0, ""); err != nil {
		e.log.Warn().Err(err).Msg("scheduled full sync did not run")
	}
}
