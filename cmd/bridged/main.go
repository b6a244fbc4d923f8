// Bridged daemon -- UDP pubsub bridge between local subject-bus peers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"runtime/trace"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"github.com/pubsub-bridge/bridged/internal/adminapi"
	"github.com/pubsub-bridge/bridged/internal/bridge"
	"github.com/pubsub-bridge/bridged/internal/bridgemetrics"
	"github.com/pubsub-bridge/bridged/internal/config"
	"github.com/pubsub-bridge/bridged/internal/localbusref"
	"github.com/pubsub-bridge/bridged/internal/obslog"
	"github.com/pubsub-bridge/bridged/internal/transport"
	appversion "github.com/pubsub-bridge/bridged/internal/version"
)

// shutdownTimeout is the maximum time to wait for HTTP servers to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// drainTimeout is how long gracefulShutdown pauses before stopping the
// flight recorder and the HTTP servers. The bridge run loop exits on the
// same cancellation, so no outbound drain runs during the pause.
const drainTimeout = 2 * time.Second

// metricsSampleInterval is how often the route/peer gauges are refreshed
// from the bridge's live in-memory state.
const metricsSampleInterval = 5 * time.Second

// flightRecorderMinAge is the minimum window age for the flight recorder.
const flightRecorderMinAge = 500 * time.Millisecond

// flightRecorderMaxBytes is the upper bound on flight recorder window size.
const flightRecorderMaxBytes = 2 * 1024 * 1024 // 2 MiB

func main() {
	os.Exit(run())
}

func run() int {
	debug := flag.Bool("debug", false, "force debug log level regardless of BRIDGED_LOG_LEVEL")
	flag.Parse()

	bootstrap := zerolog.New(os.Stderr)

	cfg, err := config.Load(&bootstrap)
	if err != nil {
		bootstrap.Error().Err(err).Msg("failed to load configuration")
		return 1
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := obslog.New(obslog.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	cfg.Print()

	logger.Info().
		Str("version", appversion.Version).
		Str("admin_addr", cfg.AdminAddr).
		Str("metrics_addr", cfg.MetricsAddr).
		Str("fabric_addr", cfg.FabricListenAddr).
		Msg("bridged starting")

	fr := startFlightRecorder(logger)

	reg := prometheus.NewRegistry()
	collector := bridgemetrics.NewCollector(reg)

	fabric, err := transport.NewUDPFabric(cfg.FabricListenAddr, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to start fabric transport")
		return 1
	}
	defer fabric.Close()

	fc := cfg.Fabric()
	ourStamp, err := buildOurStamp(fc)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build stamp identity")
		return 1
	}

	// ourSendSrc need only be constant across every frame this process
	// emits; dispatcher.go pairs it with OurStamp to recognize and drop
	// our own relayed frames (self-loop suppression).
	const ourSendSrc = 1

	br := bridge.New(fabric, nil, ourStamp, ourSendSrc, logger)
	bus := localbusref.New(br)
	br.Bus = bus
	br.Dispatcher.Bus = bus

	if err := bootstrapPeers(fc, fabric, br); err != nil {
		logger.Error().Err(err).Msg("failed to bootstrap static peers")
		return 1
	}

	if err := runServers(cfg, br, collector, reg, logger, fr); err != nil {
		logger.Error().Err(err).Msg("bridged exited with error")
		return 1
	}

	logger.Info().Msg("bridged stopped")
	return 0
}

// runServers starts the bridge event loop, admin API, and metrics HTTP
// server as sibling goroutines under one signal-aware context, the same
// context.WithCancel + sync.WaitGroup supervision shape as the teacher's
// Server.Start/Shutdown, rather than a third-party task-group library.
func runServers(
	cfg *config.Config,
	br *bridge.Bridge,
	collector *bridgemetrics.Collector,
	reg *prometheus.Registry,
	logger zerolog.Logger,
	fr *trace.FlightRecorder,
) error {
	metricsSrv := newMetricsServer(cfg.MetricsAddr, cfg.MetricsPath, reg)
	adminSrv := adminapi.NewServer(cfg.AdminAddr, br, logger)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	var wg sync.WaitGroup
	var runErr error
	var errOnce sync.Once
	fail := func(err error) {
		errOnce.Do(func() { runErr = err })
		stop()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer obslog.RecoverPanic(logger, "bridge.Run")
		if err := br.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			fail(fmt.Errorf("bridge run loop: %w", err))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer obslog.RecoverPanic(logger, "sampleMetrics")
		sampleMetrics(ctx, br, collector)
	}()

	startHTTPServer(ctx, &wg, logger, "admin API", cfg.AdminAddr, adminSrv, fail)
	startHTTPServer(ctx, &wg, logger, "metrics server", cfg.MetricsAddr, metricsSrv, fail)

	logger.Info().Msg("bridged ready")

	<-ctx.Done()
	shutdownErr := gracefulShutdown(logger, fr, adminSrv, metricsSrv)

	wg.Wait()

	return errors.Join(runErr, shutdownErr)
}

// startHTTPServer runs srv.ListenAndServe in its own goroutine, reporting
// any error other than a clean Shutdown to fail.
func startHTTPServer(
	ctx context.Context,
	wg *sync.WaitGroup,
	logger zerolog.Logger,
	name, addr string,
	srv *http.Server,
	fail func(error),
) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer obslog.RecoverPanic(logger, name)

		logger.Info().Str("addr", addr).Msg(name + " listening")

		lc := net.ListenConfig{}
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			fail(fmt.Errorf("listen %s on %s: %w", name, addr, err))
			return
		}

		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fail(fmt.Errorf("serve %s on %s: %w", name, addr, err))
		}
	}()
}

// sampleMetrics periodically copies the bridge's in-memory peer/route
// counts into the Prometheus gauges until ctx is cancelled.
func sampleMetrics(ctx context.Context, br *bridge.Bridge, collector *bridgemetrics.Collector) {
	ticker := time.NewTicker(metricsSampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			collector.SetPeers(br.Peers.Count())
			collector.SetSubjectRoutes(br.Subjects.Count())
			collector.SetPatternRoutes(br.Patterns.Count())
		}
	}
}

// -------------------------------------------------------------------------
// Stamp identity
// -------------------------------------------------------------------------

// buildOurStamp derives this instance's stamp from the configured fabric
// identity (see bridge.BuildStamp).
func buildOurStamp(fc config.FabricConfig) (uint64, error) {
	var ifAddr netip.Addr
	if fc.IfAddr != "" {
		parsed, err := netip.ParseAddr(fc.IfAddr)
		if err != nil {
			return 0, fmt.Errorf("parse fabric ifaddr %q: %w", fc.IfAddr, err)
		}
		ifAddr = parsed
	}

	stamp, err := bridge.BuildStamp(ifAddr, fc.ServiceID)
	if err != nil {
		return 0, fmt.Errorf("build stamp: %w", err)
	}
	return stamp, nil
}

// bootstrapPeers registers every statically configured peer address under a
// synthetic bootstrap stamp so the bridge can offer it an initial HELLO
// before the peer's real stamp is known.
func bootstrapPeers(fc config.FabricConfig, fabric *transport.UDPFabric, br *bridge.Bridge) error {
	addrs, err := fc.PeerAddrs()
	if err != nil {
		return err
	}

	for _, addr := range addrs {
		stamp := transport.StaticPeerStamp(addr)
		fabric.RegisterPeer(stamp, addr)

		ping := br.OurStamp
		f := bridge.Frame{MsgType: bridge.MsgHello, Src: br.OurSendSrc, Stamp: br.OurStamp, Ping: &ping}
		br.Outbound.Enqueue(stamp, &f)
	}
	return nil
}

// -------------------------------------------------------------------------
// Graceful Shutdown
// -------------------------------------------------------------------------

func gracefulShutdown(logger zerolog.Logger, fr *trace.FlightRecorder, servers ...*http.Server) error {
	logger.Info().Msg("initiating graceful shutdown")

	time.Sleep(drainTimeout)

	if fr != nil {
		fr.Stop()
		logger.Debug().Msg("flight recorder stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

// -------------------------------------------------------------------------
// Flight Recorder — Go 1.26 runtime/trace
// -------------------------------------------------------------------------

func startFlightRecorder(logger zerolog.Logger) *trace.FlightRecorder {
	fr := trace.NewFlightRecorder(trace.FlightRecorderConfig{
		MinAge:   flightRecorderMinAge,
		MaxBytes: flightRecorderMaxBytes,
	})

	if err := fr.Start(); err != nil {
		logger.Warn().Err(err).Msg("failed to start flight recorder")
		return nil
	}

	logger.Info().
		Dur("min_age", flightRecorderMinAge).
		Uint64("max_bytes", flightRecorderMaxBytes).
		Msg("flight recorder started")

	return fr
}

// -------------------------------------------------------------------------
// Server Setup
// -------------------------------------------------------------------------

func newMetricsServer(addr, path string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
