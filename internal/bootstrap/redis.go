package bootstrap

import (
	"context"

	infralogger "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/logger"
	infraredis "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/redis"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/audit"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/config"
)

// SetupAudit creates the optional audit publisher if Redis is enabled.
// Returns a nil publisher if Redis is disabled or unavailable; the returned
// close func is always safe to call.
func SetupAudit(ctx context.Context, cfg *config.Config, log infralogger.Logger) (*audit.Publisher, func()) {
	noop := func() {}
	if !cfg.Redis.Enabled {
		return nil, noop
	}

	client, err := infraredis.NewClient(ctx, infraredis.Config{
		Address:  cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Warn("Redis not available, audit disabled", infralogger.Error(err))
		return nil, noop
	}

	log.Info("Audit publisher initialized",
		infralogger.String("redis_address", cfg.Redis.Address),
		infralogger.String("stream", cfg.Redis.AuditStream),
	)
	publisher := audit.NewPublisher(client, cfg.Redis.AuditStream, log)
	return publisher, func() {
		publisher.Wait()
		if closeErr := client.Close(); closeErr != nil {
			log.Warn("Failed to close redis client", infralogger.Error(closeErr))
		}
	}
}
