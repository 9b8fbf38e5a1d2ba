package sink

import (
	"context"

	"github.com/jonesrussell/nmls-crawler/internal/crawler"
	"github.com/jonesrussell/nmls-crawler/internal/domain"
	"github.com/jonesrussell/nmls-crawler/internal/logger"
)

// Fanout writes every record to a primary sink and then to each mirror.
// Only the primary's error is returned; mirror failures are logged.
type Fanout struct {
	primary crawler.RecordSink
	mirrors []crawler.RecordSink
	logger  logger.Logger
}

// NewFanout creates a Fanout. With no mirrors it behaves as primary.
func NewFanout(primary crawler.RecordSink, log logger.Logger, mirrors ...crawler.RecordSink) *Fanout {
	if log == nil {
		log = logger.NewNop()
	}
	return &Fanout{
		primary: primary,
		mirrors: mirrors,
		logger:  log.With(logger.Component("sink")),
	}
}

// Write implements crawler.RecordSink.
func (f *Fanout) Write(ctx context.Context, rec domain.Record) error {
	if err := f.primary.Write(ctx, rec); err != nil {
		return err
	}
	for _, m := range f.mirrors {
		if err := m.Write(ctx, rec); err != nil {
			f.logger.Warn("Mirror write failed",
				logger.String("kind", string(rec.Kind())),
				logger.String("key", rec.Key()),
				logger.Err(err),
			)
		}
	}
	return nil
}
