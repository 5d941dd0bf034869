package turn

import (
	"context"
	"fmt"
	"time"
)

// RunRequest asks for several turns in a row. Repeat defaults to 1 and is ignored when Endless
// is set.
type RunRequest struct {
	Repeat  *int
	Endless bool
	Delay   time.Duration
}

type RunReport struct {
	TurnsExecuted  int         `json:"turns_executed"`
	LastResolution *Resolution `json:"last_turn_result"`
	Status         string      `json:"status"`
	Err            error       `json:"-"`
}

// Run executes turns back to back. The first failing turn stops the run and is never retried.
// Cancellation is checked between turns and cuts the inter-turn delay short.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) RunReport {
	var report RunReport
	step := func() bool {
		if ctx.Err() != nil {
			return false
		}
		res, err := o.ExecuteTurn(ctx)
		if err != nil {
			report.Err = err
			return false
		}
		report.TurnsExecuted++
		r := res.Resolution
		report.LastResolution = &r
		return true
	}

	if req.Endless {
		o.cfg.Logger.Info("endless run started", "delay", req.Delay)
		for step() && sleep(ctx, req.Delay) {
		}
		report.Status = withReason("Endless mode stopped", report.Err)
		return report
	}

	repeat := 1
	if req.Repeat != nil {
		repeat = max(*req.Repeat, 0)
	}
	o.cfg.Logger.Info("run started", "turns", repeat, "delay", req.Delay)
	for i := 0; i < repeat; i++ {
		if !step() {
			break
		}
		if i < repeat-1 && !sleep(ctx, req.Delay) {
			break
		}
	}
	report.Status = withReason(fmt.Sprintf("Executed %d/%d turns", report.TurnsExecuted, repeat), report.Err)
	return report
}

func withReason(status string, err error) string {
	if err == nil {
		return status
	}
	return status + " (" + err.Error() + ")"
}

// sleep waits d or until ctx ends. It reports whether the caller should continue.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
