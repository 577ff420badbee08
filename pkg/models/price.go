package models

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidTick   = errors.New("invalid price tick")
	ErrEmptySymbol   = fmt.Errorf("%w: empty symbol", ErrInvalidTick)
	ErrNonFiniteRate = fmt.Errorf("%w: non-finite rate", ErrInvalidTick)
)

// PriceTick represents a single rate update for a currency pair.
// Ticks are coalesced by Symbol only; two ticks with the same symbol
// and different rates share one pending slot.
type PriceTick struct {
	Symbol    string  `json:"symbol"`
	Rate      float64 `json:"rate"`
	Timestamp int64   `json:"timestamp,omitempty"` // unix micro
	SeqID     int64   `json:"seq_id,omitempty"`    // monotonic counter per symbol
}

// Validate rejects ticks that must never reach a subscriber.
func (t PriceTick) Validate() error {
	if t.Symbol == "" {
		return ErrEmptySymbol
	}
	if math.IsNaN(t.Rate) || math.IsInf(t.Rate, 0) {
		return fmt.Errorf("%w: %s=%v", ErrNonFiniteRate, t.Symbol, t.Rate)
	}
	return nil
}
