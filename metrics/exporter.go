package metrics

import (
	"context"
	"fmt"

	"github.com/ipfs-force-community/metrics"
	logging "github.com/ipfs/go-log/v2"
	"go.opencensus.io/stats/view"
)

var log = logging.Logger("metrics")

// SetupMetrics registers the views, starts the configured exporter and, when
// src is given, the gauge sampling loop.
func SetupMetrics(ctx context.Context, cfg *metrics.MetricsConfig, src StateSource) error {
	log.Infow("metrics config", "enabled", cfg.Enabled, "exporter", cfg.Exporter.Type)
	if !cfg.Enabled {
		return nil
	}
	if err := view.Register(views...); err != nil {
		return fmt.Errorf("register views: %w", err)
	}
	if err := startExporter(ctx, cfg); err != nil {
		return err
	}
	if src != nil {
		go recordMetricsLoop(ctx, src)
	}
	return nil
}

func startExporter(ctx context.Context, mc *metrics.MetricsConfig) error {
	cfg := mc.Exporter
	switch cfg.Type {
	case metrics.ETPrometheus:
		log.Infof("prometheus exporter on %s, namespace %s", cfg.Prometheus.EndPoint, cfg.Prometheus.Namespace)
		go func() {
			if err := metrics.RegisterPrometheusExporter(ctx, cfg.Prometheus); err != nil {
				log.Errorf("prometheus exporter stopped: %v", err)
			}
		}()
	case metrics.ETGraphite:
		log.Infof("graphite exporter, port %d", cfg.Graphite.Port)
		if err := metrics.RegisterGraphiteExporter(ctx, cfg.Graphite); err != nil {
			return fmt.Errorf("register graphite exporter: %w", err)
		}
	default:
		log.Warnf("unknown exporter type %q, metrics are collected but not exported", cfg.Type)
	}
	return nil
}
