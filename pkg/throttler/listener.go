package throttler

import (
	"errors"
	"reflect"
)

var (
	ErrNilListener         = errors.New("throttler: nil listener")
	ErrListenerNotPointer  = errors.New("throttler: listener must be a pointer")
	ErrClosed              = errors.New("throttler: dispatcher closed")
	ErrGracePeriodExceeded = errors.New("throttler: in-flight delivery outlived grace period")
)

// PriceListener receives price updates.
// A returned error is logged by the delivering goroutine and otherwise ignored.
type PriceListener interface {
	OnPrice(symbol string, rate float64) error
}

// PriceProcessor is a PriceListener that forwards what it receives to its own subscribers.
type PriceProcessor interface {
	PriceListener
	Subscribe(l PriceListener) error
	Unsubscribe(l PriceListener) error
}

// FuncListener adapts a plain function to PriceListener.
// Identity is the *FuncListener pointer, not the function.
type FuncListener struct {
	fn func(symbol string, rate float64) error
}

func ListenerFunc(fn func(symbol string, rate float64) error) *FuncListener {
	return &FuncListener{fn: fn}
}

func (f *FuncListener) OnPrice(symbol string, rate float64) error {
	return f.fn(symbol, rate)
}

// checkListener enforces reference identity for registry keys.
func checkListener(l PriceListener) error {
	if l == nil {
		return ErrNilListener
	}
	v := reflect.ValueOf(l)
	if v.Kind() != reflect.Pointer {
		return ErrListenerNotPointer
	}
	if v.IsNil() {
		return ErrNilListener
	}
	return nil
}
