// Package jobs runs periodic maintenance sweeps.
package jobs

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

const defaultInterval = 24 * time.Hour

// Periodic runs Run once at start and then on every tick until the context ends.
type Periodic struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Run      func(ctx context.Context) (int, error)
}

// Start runs the job loop in the background. done is closed when the loop exits.
func (p *Periodic) Start(ctx context.Context) (done <-chan struct{}) {
	ch := make(chan struct{})
	if p == nil || p.Run == nil {
		close(ch)
		return ch
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		defer close(ch)
		p.loop(ctx)
	}()
	log.Infof("%s job started (interval=%s)", p.Name, p.interval())
	return ch
}

func (p *Periodic) interval() time.Duration {
	if p.Interval <= 0 {
		return defaultInterval
	}
	return p.Interval
}

func (p *Periodic) loop(ctx context.Context) {
	_, _ = p.RunOnce(ctx)

	ticker := time.NewTicker(p.interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = p.RunOnce(ctx)
		}
	}
}

// RunOnce executes the job a single time, logs the outcome and returns it.
func (p *Periodic) RunOnce(ctx context.Context) (int, error) {
	if errCtx := ctx.Err(); errCtx != nil {
		return 0, errCtx
	}
	runCtx := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	start := time.Now()
	count, errRun := p.safeRun(runCtx)
	entry := log.WithFields(log.Fields{
		"job":      p.Name,
		"affected": count,
		"elapsed":  time.Since(start).String(),
	})
	if errRun != nil {
		entry.WithError(errRun).Warn("job run failed")
		return count, errRun
	}
	entry.Info("job run finished")
	return count, nil
}

func (p *Periodic) safeRun(ctx context.Context) (count int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("jobs: %s panicked: %v", p.Name, r)
		}
	}()
	return p.Run(ctx)
}
