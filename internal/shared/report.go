package shared

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
)

var reportingEnabled atomic.Bool

// InitReporting configures Sentry when cfg carries a DSN.
//
// The returned flush function must be called before exit. It is a no-op when
// reporting is disabled.
func InitReporting(cfg ReportingConfig, release string) (func(), error) {
	if cfg.SentryDSN == "" {
		return func() {}, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.Environment,
		Release:     release,
	})
	if err != nil {
		return func() {}, fmt.Errorf("%w: sentry: %v", ErrInvalidConfig, err)
	}

	reportingEnabled.Store(true)
	return func() { sentry.Flush(2 * time.Second) }, nil
}

// ReportError sends err to Sentry with tags when reporting is enabled.
func ReportError(err error, tags map[string]string) {
	if err == nil || !reportingEnabled.Load() {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}
