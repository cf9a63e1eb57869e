// cmd/bmbus/run.go
package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/bmbus/internal/metrics"
	"github.com/tamzrod/bmbus/internal/poller"
	"github.com/tamzrod/bmbus/internal/publisher"
	"github.com/tamzrod/bmbus/internal/registry"
	"github.com/tamzrod/bmbus/internal/status"
	"github.com/tamzrod/bmbus/internal/writer"
)

// runDaemon addresses (or adopts) the chain and polls it until ctx ends.
func runDaemon(ctx context.Context, s *stack) error {
	c := s.cfg
	log := s.log

	// ---- metrics endpoint ----
	if c.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle(c.Metrics.Path, metrics.Handler(s.prom))
		srv := &http.Server{Addr: c.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		log.Info("metrics listening", zap.String("addr", c.Metrics.Listen), zap.String("path", c.Metrics.Path))
	}

	// ---- registry ----
	if err := s.bringUp(ctx); err != nil {
		return err
	}

	// ---- poller ----
	p, _, err := poller.Build(c, s.disp, s.reg, log, s.metrics)
	if err != nil {
		return err
	}

	// ---- outputs ----
	tracker := status.NewTracker(s.reg.Addresses())
	for _, m := range s.reg.Modules() {
		if m.State != registry.StatePrimed {
			tracker.Disable(m.Address)
		}
	}

	var mirror *writer.Mirror
	if c.Mirror != nil {
		plan, err := writer.BuildPlan(c)
		if err != nil {
			return err
		}
		cli, closeMirror, err := writer.BuildEndpointClient(c)
		if err != nil {
			return err
		}
		defer closeMirror()
		mirror = writer.New(plan, cli)
	}

	var pub *publisher.Publisher
	if c.MQTT != nil {
		pub, err = publisher.Connect(*c.MQTT, log.Named("mqtt"))
		if err != nil {
			return err
		}
		defer pub.Close()
	}

	// The bus is closed after runDaemon returns; wait for the poller first.
	out := make(chan poller.PollResult)
	pollDone := startPolling(ctx, p, out)
	defer func() { <-pollDone }()

	// Orchestrator (owns delivery + 1Hz seconds ticker)
	secTicker := time.NewTicker(time.Second)
	defer secTicker.Stop()

	// Full block write on start (identity re-assert).
	if mirror != nil {
		if err := mirror.Write(s.reg.Modules(), tracker.Get); err != nil {
			log.Warn("mirror write failed on start", zap.Error(err))
		}
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return nil

		case res := <-out:
			tracker.Apply(res)
			mods := s.reg.Modules()

			if mirror != nil {
				if err := mirror.Write(mods, tracker.Get); err != nil {
					log.Warn("mirror write failed", zap.String("cycle", res.CycleID), zap.Error(err))
				}
			}
			if pub != nil {
				if err := pub.Publish(res.CycleID, res.At, mods, tracker.Get); err != nil {
					log.Warn("mqtt publish failed",
						zap.String("cycle", res.CycleID),
						zap.Bool("connected", pub.Connected()),
						zap.String("last_conn_error", pub.LastError()),
						zap.Error(err),
					)
				}
			}

		case <-secTicker.C:
			changed := tracker.Tick()
			if mirror == nil || len(changed) == 0 {
				continue
			}
			var mods []registry.Module
			for _, a := range changed {
				if m, ok := s.reg.Get(a); ok {
					mods = append(mods, m)
				}
			}
			if err := mirror.WriteStatus(mods, tracker.Get); err != nil {
				log.Warn("status seconds tick write failed", zap.Error(err))
			}
		}
	}
}

// pollRunner is the part of the poller the daemon drives.
type pollRunner interface {
	Run(ctx context.Context, out chan<- poller.PollResult)
}

// startPolling runs r in its own goroutine. The returned channel is closed
// once Run has returned.
func startPolling(ctx context.Context, r pollRunner, out chan<- poller.PollResult) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx, out)
	}()
	return done
}
