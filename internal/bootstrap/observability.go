package bootstrap

import (
	"log/slog"

	"github.com/target/tokengate/config"
	"github.com/target/tokengate/internal/observability/statsd"
)

// BuildMetrics returns the StatsD client for cfg. Disabled or unreachable sinks yield a no-op client.
func BuildMetrics(cfg config.ObservabilityMetricsConfig, logger *slog.Logger) *statsd.Client {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.IsEnabled() {
		return nil
	}
	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.StatsdAddress,
		Prefix:  cfg.Prefix,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialise statsd client", "error", err)
		return nil
	}
	logger.Info("metrics enabled", "address", cfg.StatsdAddress, "prefix", cfg.Prefix)
	return client
}
