package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lektronik/zeroexport/regulator"
)

// SafeGo launches fn in a goroutine with panic recovery and exponential
// backoff retry, adapted from src/main.go's SafeGo: retries reset after a
// worker survives 2 minutes, and cancel fires after the worker has failed
// maxRetries times in a row.
func SafeGo(ctx context.Context, cancel context.CancelFunc, name string, fn func(ctx context.Context)) {
	const maxRetries = 10
	const maxDelay = 10 * time.Minute
	const resetAfter = 2 * time.Minute

	log := appLogger()

	go func() {
		retries := 0
		delay := time.Second

		for {
			start := time.Now()
			var panicValue any

			func() {
				defer func() { panicValue = recover() }()
				fn(ctx)
			}()

			if panicValue == nil {
				return
			}

			if time.Since(start) >= resetAfter {
				retries = 0
				delay = time.Second
			}

			retries++
			log.WithFields(map[string]any{
				"worker": name, "attempt": retries, "max": maxRetries, "panic": panicValue,
			}).Error("worker panicked")

			if retries >= maxRetries {
				log.WithField("worker", name).Error("worker exhausted retries, shutting down")
				cancel()
				return
			}

			select {
			case <-time.After(delay):
				delay *= 2
				if delay > maxDelay {
					delay = maxDelay
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func regulatorConfigFrom(p ControlParams) regulator.Config {
	return regulator.Config{
		TargetW:           p.TargetW,
		ToleranceW:        p.ToleranceW,
		HighThresholdW:    p.MaxPointW,
		LowThresholdW:     p.MinPointW,
		JumpPercent:       p.OnGridJumpPercent,
		FastCutEnabled:    p.FastLimitDecrease,
		SlowLimitPercent:  p.SlowApproxPercent,
		SlowFactorPercent: p.SlowApproxFactor,
	}
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration document")
	debugMode := flag.Bool("debug", false, "enable the interactive debug console")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		appLogger().WithError(err).Debug("main: no .env file loaded")
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		appLogger().WithError(err).Fatal("main: config load failed")
	}

	log := NewLogger(cfg.LogLevel)
	log.Info("starting zeroexport controller")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	view := NewGatewayView()
	gate := NewEnableGate(log)

	reg, err := regulator.New(regulatorConfigFrom(cfg.Control))
	if err != nil {
		log.WithError(err).Fatal("main: invalid control params")
	}

	bus := NewBusWorker(cfg.Bus, log, view, gate)
	sender := NewBusSender(bus.Client(), log)
	actuator := NewGatewayActuator(sender, view, cfg.Bus.GatewayPrefix)
	meter := NewMeterReader(cfg.Meter)
	sink := NewTelemetrySink(cfg.Telemetry, log)
	calib := NewCalibrationMonitor(view, sink, log, cfg.Inverters, 5*time.Minute)

	loop := NewControlLoop(view, gate, meter, actuator, sender, cfg.Bus.OurPrefix, reg, sink, log, cfg.Inverters, cfg.Control)
	httpServer := NewHTTPServer(cfg.HTTP.BindAddr, gate, log)

	SafeGo(ctx, cancel, "bus-worker", func(ctx context.Context) {
		if err := bus.Run(ctx); err != nil {
			log.WithError(err).Error("bus worker stopped")
		}
	})
	SafeGo(ctx, cancel, "bus-sender", sender.Run)
	SafeGo(ctx, cancel, "telemetry-sink", sink.Run)
	SafeGo(ctx, cancel, "calibration-monitor", calib.Run)
	SafeGo(ctx, cancel, "control-loop", loop.Run)

	go func() {
		if err := httpServer.ListenAndServe(); err != nil {
			log.WithError(err).Error("http server stopped")
			cancel()
		}
	}()

	if *debugMode {
		console := NewDebugConsole(view, gate, log)
		SafeGo(ctx, cancel, "debug-console", func(ctx context.Context) {
			console.Run(ctx, cancel)
		})
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("shutdown signal received")
	case <-ctx.Done():
		log.Info("shutting down due to worker failure")
	}

	cancel()
	_ = httpServer.Shutdown()
}
