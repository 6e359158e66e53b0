package main

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/go-go-golems/dbuddy/pkg/bus"
	"github.com/go-go-golems/dbuddy/pkg/config"
	"github.com/go-go-golems/dbuddy/pkg/dbus"
	"github.com/go-go-golems/dbuddy/pkg/history"
	"github.com/go-go-golems/dbuddy/pkg/ingest"
	"github.com/go-go-golems/dbuddy/pkg/metrics"
	"github.com/go-go-golems/dbuddy/pkg/procinfo"
	"github.com/go-go-golems/dbuddy/pkg/query"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// app is everything shared by the TUI and dump commands.
type app struct {
	cfg *config.Config

	registry *prometheus.Registry
	metrics  *metrics.Metrics
	pubsub   *gochannel.GoChannel
	cache    *procinfo.Cache
	history  *history.History
	engine   *query.Engine
	pipeline *ingest.Pipeline
}

func newApp(cfg *config.Config, sources []bus.Source) (*app, error) {
	qc, err := cfg.Query()
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg)

	hist := history.New(qc.MaxMessages, m)
	engine := query.NewEngine(query.WithMetrics(m), query.WithHistory(hist))
	if err := engine.Configure(qc); err != nil {
		return nil, errors.Wrap(err, "initial filter")
	}

	lookup, err := procinfo.NewProcfsLookup("")
	if err != nil {
		return nil, err
	}
	cache := procinfo.NewCache(lookup, procinfo.WithMetrics(m))

	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, watermill.NopLogger{})

	transports := make(map[bus.Source]ingest.Transport, len(sources))
	for _, src := range sources {
		transports[src] = dbus.NewMonitor(src)
	}
	pipeline := ingest.NewPipeline(transports, ingest.Options{
		ChannelCapacity: cfg.ChannelCapacity,
		Decoder:         dbus.BodyDecoder{MaxDepth: dbus.MaxNesting},
		Cache:           cache,
		Status:          &ingest.StatusPublisher{Pub: pubsub},
		Metrics:         m,
	})

	return &app{
		cfg:      cfg,
		registry: reg,
		metrics:  m,
		pubsub:   pubsub,
		cache:    cache,
		history:  hist,
		engine:   engine,
		pipeline: pipeline,
	}, nil
}

func (a *app) Close() error {
	return a.pubsub.Close()
}

// serveMetrics serves /metrics until ctx is done.
func (a *app) serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "metrics server")
	}
	return nil
}
