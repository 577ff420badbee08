package sink

import (
	"go.uber.org/zap"
)

// LogSink is a subscriber that only logs what it receives.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger, name string) *LogSink {
	return &LogSink{logger: logger.With(zap.String("sink", name))}
}

func (s *LogSink) OnPrice(symbol string, rate float64) error {
	s.logger.Info("Price received", zap.String("symbol", symbol), zap.Float64("rate", rate))
	return nil
}
