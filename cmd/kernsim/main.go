package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"

	"rtcore/internal/job"
	"rtcore/internal/kernel"
)

func main() {
	var (
		cfgPath  string
		ticks    int64
		csvPath  string
		snapshot bool
	)
	flag.StringVar(&cfgPath, "config", "config.yml", "YAML config path (missing = defaults).")
	flag.Int64Var(&ticks, "ticks", 200, "Stop after N ticks (0 = run until interrupted).")
	flag.StringVar(&csvPath, "csv", "", "Write the scheduler trace to this CSV file (overrides trace_csv).")
	flag.BoolVar(&snapshot, "snapshot", false, "Print a JSON snapshot of the kernel on exit.")
	flag.Parse()

	if err := run(cfgPath, ticks, csvPath, snapshot); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfgPath string, ticks int64, csvPath string, snapshot bool) error {
	// Read the configuration
	cfg, err := kernel.Load(cfgPath)
	if err != nil {
		return err
	}
	if csvPath != "" {
		cfg.TraceCSV = csvPath
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log_level %q: %w", cfg.LogLevel, err)
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "Jan 02 15:04:05.000"}).
		Level(level).
		With().Timestamp().Logger()
	log.Info().Interface("config", cfg).Msg("loaded config")

	tracers := []kernel.Tracer{kernel.LogTracer{Log: log}}
	if cfg.TraceCSV != "" {
		rec, err := kernel.NewCSVRecorder(cfg.TraceCSV)
		if err != nil {
			return err
		}
		defer rec.Close()
		tracers = append(tracers, rec)
	}

	k, err := kernel.New(cfg,
		kernel.WithLogger(log),
		kernel.WithTracer(kernel.Tracers(tracers...)),
		kernel.WithPanicHandler(func(info kernel.PanicInfo) {
			log.Error().Err(info.Err).Bytes("stack", info.Stack).Msg("kernel panic")
		}),
	)
	if err != nil {
		return err
	}
	if err := boot(k, log); err != nil {
		return err
	}
	if err := k.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	clock := kernel.NewTickClock(k.Tick)
	clock.Start(time.Duration(cfg.TickMS) * time.Millisecond)
	wait(ctx, clock, ticks)
	clock.Stop()

	// with the clock stopped every task ends up blocked
	idleCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := k.WaitIdle(idleCtx); err != nil {
		log.Warn().Err(err).Msg("kernel did not settle")
	}
	if snapshot {
		out, err := sonic.ConfigStd.MarshalIndent(k.Snapshot(), "", "  ")
		if err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		fmt.Println(string(out))
	}
	k.Stop()
	log.Info().Uint64("ticks", k.Ticks()).Msg("stopped")
	return nil
}

// boot creates the demo workload: a watchdog that gives a semaphore from
// interrupt context every 5 ticks, two consumers of different priority, and a
// background sleeper.
func boot(k *kernel.Kernel, log zerolog.Logger) error {
	sem, err := k.SemCreate(kernel.SemQPriority, 0)
	if err != nil {
		return err
	}
	wd, err := k.WdCreate()
	if err != nil {
		return err
	}

	report := func(id kernel.TaskID, err error) {
		ev := log.Info()
		if err != nil {
			ev = log.Warn().Err(err)
		}
		ev.Uint32("task", uint32(id)).Uint32("sem", uint32(sem)).Msg("take")
	}
	for _, c := range []struct {
		name     string
		priority int
		timeout  int
	}{
		{"consumer-hi", 10, 8},
		{"consumer-lo", 20, kernel.WaitForever},
	} {
		if _, err := k.Spawn(c.name, c.priority, job.Consumer(sem, c.timeout, 0, report)); err != nil {
			return fmt.Errorf("spawn %s: %w", c.name, err)
		}
	}
	if _, err := k.Spawn("sleeper", 30, job.Sleeper(7, 0, func(id kernel.TaskID, woke uint64) {
		log.Debug().Uint32("task", uint32(id)).Uint64("tick", woke).Msg("woke")
	})); err != nil {
		return fmt.Errorf("spawn sleeper: %w", err)
	}

	k.Interrupt(func(c *kernel.Context) {
		err = c.WdStart(wd, 5, job.Producer(wd, sem, 5, func(err error) {
			log.Warn().Err(err).Uint32("wd", uint32(wd)).Msg("producer stopped")
		}), nil)
	})
	return err
}

func wait(ctx context.Context, clock *kernel.TickClock, ticks int64) {
	poll := time.NewTicker(10 * time.Millisecond)
	defer poll.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			if ticks > 0 && clock.Count() >= ticks {
				return
			}
		}
	}
}
