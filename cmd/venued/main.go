// Command venued is the matching venue's server process: it wires the
// clock, ingress queue, order books, matching engine, session decoder
// workers, admission controller, and dispatch bus together and runs them
// under a tomb.Tomb supervisor, the same top-level shape as the teacher's
// cmd/main.go + cmd/server/server.go (context + signal.NotifyContext +
// tomb.WithContext), generalized from a single TCP accept loop to the
// venue's full component graph.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	tomb "gopkg.in/tomb.v2"

	"venuecore/internal/admission"
	"venuecore/internal/clock"
	"venuecore/internal/common"
	"venuecore/internal/config"
	"venuecore/internal/dispatch"
	"venuecore/internal/engine"
	"venuecore/internal/metrics"
	"venuecore/internal/queue"
	"venuecore/internal/risk"
	"venuecore/internal/session"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var symbolsFlag []string

	cmd := &cobra.Command{
		Use:   "venued",
		Short: "run the matching venue server",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			v.BindPFlags(cmd.Flags())
			opts, err := config.Load(v, configPath)
			if err != nil {
				return err
			}
			if len(symbolsFlag) == 0 {
				symbolsFlag = []string{"AAPL", "MSFT", "GOOG"}
			}
			symbols := make([]common.Symbol, len(symbolsFlag))
			for i, s := range symbolsFlag {
				symbols[i] = common.Symbol(s)
			}
			return run(opts, symbols)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a venue config file")
	cmd.Flags().StringSliceVar(&symbolsFlag, "symbols", nil, "symbols to list at startup")
	return cmd
}

func run(opts config.Options, symbols []common.Symbol) error {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Str("service", "venued").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	t, ctx := tomb.WithContext(ctx)
	tb := clock.New()

	registry := prometheus.NewRegistry()
	collector := metrics.New(registry)

	bus := dispatch.New(log)
	bus.Register(dispatch.NewMetricsListener(collector))
	marketData := dispatch.NewMarketDataHub(log)
	bus.Register(marketData)

	checker := risk.NewDefaultChecker(risk.Limits{
		PerSymbolPositionLimit: opts.PerSymbolPositionLimit,
		PerOrderNotionalLimit:  opts.PerOrderNotionalLimit,
		MaxPrice:               common.Price(opts.MaxPrice),
		MaxQuantity:            opts.MaxQuantity,
	})

	eng, err := engine.New(opts, symbols, checker, bus, tb, log)
	if err != nil {
		return fmt.Errorf("venued: %w", err)
	}

	ingress := queue.NewIngressQueue(opts.IngressCapacity)

	admissionCtl := admission.New(
		admission.Gains{Kp: opts.AdmissionKp, Ki: opts.AdmissionKi, Kd: opts.AdmissionKd, Period: opts.ControlPeriod},
		time.Duration(opts.P99TargetNanos),
		float64(opts.IngressCapacity)/4,
		opts.EmergencyDepthRatio,
		func() float64 { return float64(ingress.Depth()) / float64(ingress.Capacity()) },
		log,
	)
	t.Go(func() error { return admissionCtl.Run(ctx) })

	pool := session.NewWorkerPool(opts.ParserWorkers, ingress, opts.MaxFrameBytes, log)
	pool.Start(t, opts.ParserWorkers)

	t.Go(func() error { return acceptLoop(t, ctx, opts.ListenAddress, pool, log) })
	t.Go(func() error { return matchingLoop(t, ctx, eng, ingress, admissionCtl, log) })

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(registry))
	mux.Handle("/marketdata", marketData)
	httpSrv := &http.Server{Addr: opts.MetricsAddr, Handler: mux}
	t.Go(func() error {
		<-ctx.Done()
		return httpSrv.Close()
	})
	t.Go(func() error {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	log.Info().Str("listen", opts.ListenAddress).Str("metrics", opts.MetricsAddr).Msg("venued running")
	<-ctx.Done()
	return t.Wait()
}

func acceptLoop(t *tomb.Tomb, ctx context.Context, addr string, pool *session.WorkerPool, log zerolog.Logger) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("venued: listen %s: %w", addr, err)
	}
	defer listener.Close()

	go func() {
		<-t.Dying()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-t.Dying():
				return nil
			default:
				log.Error().Err(err).Msg("accept error")
				continue
			}
		}
		pool.Submit(conn)
	}
}

// matchingLoop is the engine's single writer goroutine: it drains the
// ingress queue and is the only caller of eng.ProcessCommand, per the
// single-writer concurrency model spec.md requires.
func matchingLoop(t *tomb.Tomb, ctx context.Context, eng *engine.MatchingEngine, ingress *queue.IngressQueue, adm *admission.Controller, log zerolog.Logger) error {
	for {
		select {
		case <-t.Dying():
			return nil
		default:
		}
		cmd, ok := ingress.TryDequeue()
		if !ok {
			continue
		}
		if err := eng.ProcessCommand(cmd); err != nil {
			log.Error().Err(err).Msg("fatal engine error, halting matching loop")
			return err
		}
	}
}
