package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/evgeniymelnikov/traderimo-test-task/pkg/models"
	"github.com/evgeniymelnikov/traderimo-test-task/pkg/throttler"
)

// Ingestor is the single upstream producer: it reads ticks from Kafka
// and hands each one to the dispatcher.
type Ingestor struct {
	logger Logger
	reader KafkaReader
	out    throttler.PriceListener

	// Per-symbol SeqID seen last; Kafka delivers at least once.
	lastSeq map[string]int64
}

func NewIngestor(logger Logger, reader KafkaReader, out throttler.PriceListener) *Ingestor {
	return &Ingestor{
		logger:  logger,
		reader:  reader,
		out:     out,
		lastSeq: make(map[string]int64),
	}
}

// Run blocks until ctx is done or the reader is exhausted.
func (i *Ingestor) Run(ctx context.Context) error {
	i.logger.Info("Ingestor Started")

	for {
		m, err := i.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
				i.logger.Info("Ingestor stopping", zap.Error(err))
				return nil
			}
			i.logger.Error("Kafka Read Error", zap.Error(err))
			continue
		}

		i.handle(m.Value)
	}
}

func (i *Ingestor) handle(payload []byte) {
	var tick models.PriceTick
	if err := json.Unmarshal(payload, &tick); err != nil {
		i.logger.Error("JSON Unmarshal Error", zap.Error(err))
		return
	}

	// Ticks without a SeqID are never treated as duplicates
	if tick.SeqID != 0 && tick.SeqID <= i.lastSeq[tick.Symbol] {
		i.logger.Debug("Skipping duplicate tick", zap.String("symbol", tick.Symbol), zap.Int64("seq_id", tick.SeqID))
		return
	}

	if err := i.out.OnPrice(tick.Symbol, tick.Rate); err != nil {
		i.logger.Warn("Rejected tick", zap.String("symbol", tick.Symbol), zap.Error(err))
		return
	}

	if tick.SeqID != 0 {
		i.lastSeq[tick.Symbol] = tick.SeqID
	}
}
