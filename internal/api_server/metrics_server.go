package apiserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/statspub/publisher/pkg/metrics"
)

// Unique data set counts cover a calendar week starting Monday 00:00 UTC.
const uniqueDataSetsResetSchedule = "0 0 * * 1"

// MetricServer exposes /metrics on its own listener and keeps the gauges
// derived from the status store fresh.
type MetricServer struct {
	listener        net.Listener
	stats           metrics.StatisticsReader
	refreshInterval time.Duration
	httpServer      *http.Server
}

func NewMetricServer(listener net.Listener, stats metrics.StatisticsReader, refreshInterval time.Duration) *MetricServer {
	metrics.RegisterPublishingCollectors(stats)

	router := chi.NewRouter()
	router.Handle("/metrics", metrics.NewPrometheusMetricsHandler().Handler())

	return &MetricServer{
		listener:        listener,
		stats:           stats,
		refreshInterval: refreshInterval,
		httpServer:      &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second},
	}
}

func (m *MetricServer) Run(ctx context.Context) error {
	log := zap.S().Named("metrics_server")

	weekly := cron.New(cron.WithLocation(time.UTC))
	if _, err := weekly.AddFunc(uniqueDataSetsResetSchedule, func() {
		metrics.UniqueDataSetsPerWeek.Reset()
		log.Info("weekly unique data sets metric reset")
	}); err != nil {
		return fmt.Errorf("scheduling unique data sets reset: %w", err)
	}
	weekly.Start()
	defer weekly.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		metrics.RefreshAttemptsGauge(gctx, m.stats, m.refreshInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()
		m.httpServer.SetKeepAlivesEnabled(false)
		return m.httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		log.Infof("serving metrics on %s", m.listener.Addr())
		err := m.httpServer.Serve(m.listener)
		if err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err := g.Wait()
	log.Info("metrics server terminated")
	return err
}
