package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"github.com/orizon-lang/orizon-rc/internal/cli"
	"github.com/orizon-lang/orizon-rc/internal/config"
	"github.com/orizon-lang/orizon-rc/internal/runtime"
	"github.com/orizon-lang/orizon-rc/internal/runtime/netstack"
)

const toolName = "Orizon RC Heap"

type options struct {
	configPath string
	workload   string
	objects    int
	rounds     int
	seed       int64
	httpAddr   string
	http3Addr  string
	watch      bool
	serve      bool
	jsonOutput bool
}

func main() {
	var (
		opts        options
		showVersion = flag.Bool("version", false, "show version information")
		verbose     = flag.Bool("verbose", false, "verbose output")
		debug       = flag.Bool("debug", false, "debug output, including per-pass collector summaries")
		logFile     = flag.String("log", "", "write log to file instead of stderr")
	)
	flag.StringVar(&opts.configPath, "config", "", "heap configuration file (TOML)")
	flag.StringVar(&opts.workload, "workload", "mixed", "workload: "+strings.Join(workloadNames(), ", "))
	flag.IntVar(&opts.objects, "n", 10000, "objects allocated per round")
	flag.IntVar(&opts.rounds, "rounds", 1, "workload rounds")
	flag.Int64Var(&opts.seed, "seed", 1, "random seed")
	flag.StringVar(&opts.httpAddr, "http", "", "serve observability endpoints on this address (overrides metrics_addr)")
	flag.StringVar(&opts.http3Addr, "http3", "", "serve observability endpoints over HTTP/3 on this address (overrides http3_addr)")
	flag.BoolVar(&opts.watch, "watch", false, "reload the configuration file when it changes")
	flag.BoolVar(&opts.serve, "serve", false, "keep serving after the workload until interrupted")
	flag.BoolVar(&opts.jsonOutput, "json", false, "output in JSON format")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Runs a workload against the reference counting heap and reports its statistics.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEXAMPLES:\n")
		fmt.Fprintf(os.Stderr, "  %s -workload cycles -n 100000            # Reclaim 50000 garbage cycles\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -config heap.toml -watch -serve -http :9464\n", os.Args[0])
	}
	flag.Parse()

	if *showVersion {
		cli.PrintVersion(os.Stdout, toolName, opts.jsonOutput)
		os.Exit(0)
	}

	cli.ConfigureLogging(*verbose, *debug, *logFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		cli.ExitWithError("%v", err)
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	log := commonlog.GetLogger("orizon.runtime")

	work, ok := workloads[opts.workload]
	if !ok {
		return fmt.Errorf("unknown workload %q (want one of %s)", opts.workload, strings.Join(workloadNames(), ", "))
	}
	if opts.watch && opts.configPath == "" {
		return errors.New("-watch requires -config")
	}

	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return err
		}
	}
	if opts.httpAddr != "" {
		cfg.Observe.MetricsAddr = opts.httpAddr
	}
	if opts.http3Addr != "" {
		cfg.Observe.HTTP3Addr = opts.http3Addr
	}

	rt, err := runtime.New(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	mux := runtime.NewHeapMux(rt, nil)

	if addr := cfg.Observe.MetricsAddr; addr != "" {
		bound, shutdown, err := runtime.StartMetricsServer(addr, mux)
		if err != nil {
			return fmt.Errorf("cannot serve metrics on %s: %w", addr, err)
		}
		log.Noticef("serving heap endpoints on http://%s", bound)
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer scancel()
			return shutdown(sctx)
		})
	}

	if addr := cfg.Observe.HTTP3Addr; addr != "" {
		tlsCfg, err := netstack.ServerTLS(cfg.Observe.CertFile, cfg.Observe.KeyFile, "localhost")
		if err != nil {
			return err
		}
		srv := netstack.NewHTTP3Server(addr, tlsCfg, mux)
		bound, err := srv.Start()
		if err != nil {
			return fmt.Errorf("cannot serve HTTP/3 on %s: %w", addr, err)
		}
		log.Noticef("serving heap endpoints on https://%s (HTTP/3)", bound)
		g.Go(func() error { return srv.Run(gctx) })
	}

	if opts.watch {
		w, err := config.NewWatcher(opts.configPath)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return w.Run(gctx, func(c config.Config) {
				if opts.httpAddr != "" {
					c.Observe.MetricsAddr = opts.httpAddr
				}
				if err := rt.Reload(c); err != nil {
					log.Warningf("config reload rejected: %s", err)
				}
			})
		})
	}

	// The heap belongs to this goroutine from here on.
	g.Go(func() error {
		rng := rand.New(rand.NewSource(opts.seed))
		for i := 0; i < opts.rounds; i++ {
			if gctx.Err() != nil {
				break
			}
			if err := work(rt, opts.objects, rng); err != nil {
				cancel()
				return fmt.Errorf("workload %s round %d: %w", opts.workload, i+1, err)
			}
			log.Infof("round %d done: %d records live", i+1, rt.Collector().Live())
		}
		rt.CollectCycles()
		if err := report(out, rt.Status(), opts.jsonOutput); err != nil {
			cancel()
			return err
		}

		if !opts.serve {
			cancel()
			return nil
		}
		tick := time.NewTicker(250 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-tick.C:
				rt.MaybeCollect()
			}
		}
	})

	return g.Wait()
}

func report(w io.Writer, st runtime.HeapStatus, jsonOutput bool) error {
	if jsonOutput {
		return cli.WriteJSON(w, st)
	}
	fmt.Fprintf(w, "allocations:   %d\n", st.TotalAllocations)
	fmt.Fprintf(w, "deallocations: %d\n", st.TotalDeallocations)
	fmt.Fprintf(w, "live records:  %d (%d bytes, peak %d)\n", st.LiveRecords, st.CurrentMemory, st.PeakMemory)
	fmt.Fprintf(w, "collections:   %d (%d aborted, %d cycle records freed)\n", st.Collections, st.AbortedPasses, st.CycleFrees)
	fmt.Fprintf(w, "pause:         last %s, total %s\n", st.LastPause, st.TotalPause)
	if st.PotentialLeak {
		fmt.Fprintf(w, "leak suspects: %d\n", st.LeakSuspects)
	}
	return nil
}
