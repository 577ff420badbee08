package generator_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/evgeniymelnikov/traderimo-test-task/cmd/generator/internal/generator"
	"github.com/evgeniymelnikov/traderimo-test-task/cmd/generator/internal/testutils"
	"github.com/evgeniymelnikov/traderimo-test-task/pkg/models"
)

func TestGenerator_Logic(t *testing.T) {
	logger := zap.NewNop()
	mockWriter := &testutils.MockKafkaWriter{}

	// Always pick index 0 and return 0.5, which is a zero move
	mockRand := &testutils.MockRand{ValInt: 0, ValFloat: 0.5}
	mockClock := &testutils.MockClock{CurrentTime: time.Unix(0, 0)}

	pairs := []string{"USD/TRY"}
	baseRates := map[string]float64{"USD/TRY": 8.1}

	gen := generator.NewRateGenerator(logger, mockWriter, pairs, baseRates, mockRand, mockClock, 100*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	gen.Run(ctx)

	mockWriter.Mu.Lock()
	defer mockWriter.Mu.Unlock()

	if len(mockWriter.Messages) == 0 {
		t.Fatal("Expected messages to be generated")
	}

	var tick models.PriceTick
	if err := json.Unmarshal(mockWriter.Messages[0].Value, &tick); err != nil {
		t.Fatalf("Generated invalid JSON: %v", err)
	}

	if tick.Symbol != "USD/TRY" {
		t.Errorf("Expected USD/TRY, got %s", tick.Symbol)
	}
	if string(mockWriter.Messages[0].Key) != "USD/TRY" {
		t.Errorf("Expected message key USD/TRY, got %s", mockWriter.Messages[0].Key)
	}
	if tick.SeqID != 1 {
		t.Errorf("Expected SeqID 1, got %d", tick.SeqID)
	}
	if tick.Rate != 8.1 {
		t.Errorf("Expected Rate 8.1, got %f", tick.Rate)
	}
	if err := tick.Validate(); err != nil {
		t.Errorf("Generated tick should be valid: %v", err)
	}
}

func TestGenerator_RandomWalkFollowsRand(t *testing.T) {
	mockWriter := &testutils.MockKafkaWriter{}
	// Float 1.0 is the maximum upward move on every tick
	mockRand := &testutils.MockRand{ValInt: 0, ValFloat: 1.0}
	mockClock := &testutils.MockClock{CurrentTime: time.Unix(0, 0)}

	gen := generator.NewRateGenerator(zap.NewNop(), mockWriter, []string{"USD/BTC"},
		map[string]float64{"USD/BTC": 30000}, mockRand, mockClock, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	gen.Run(ctx)

	mockWriter.Mu.Lock()
	defer mockWriter.Mu.Unlock()

	var prev float64
	for i, msg := range mockWriter.Messages {
		var tick models.PriceTick
		if err := json.Unmarshal(msg.Value, &tick); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if tick.Rate <= prev {
			t.Fatalf("message %d: expected rising rate, got %f after %f", i, tick.Rate, prev)
		}
		if tick.SeqID != int64(i+1) {
			t.Fatalf("message %d: expected SeqID %d, got %d", i, i+1, tick.SeqID)
		}
		prev = tick.Rate
	}
}

func TestGenerator_UnknownPairStartsAtDefault(t *testing.T) {
	mockWriter := &testutils.MockKafkaWriter{}
	mockRand := &testutils.MockRand{ValInt: 0, ValFloat: 0.5}
	mockClock := &testutils.MockClock{CurrentTime: time.Unix(0, 0)}

	gen := generator.NewRateGenerator(zap.NewNop(), mockWriter, []string{"XAU/USD"}, nil, mockRand, mockClock, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	gen.Run(ctx)

	if mockWriter.Count() == 0 {
		t.Fatal("Expected messages to be generated")
	}
	var tick models.PriceTick
	_ = json.Unmarshal(mockWriter.Messages[0].Value, &tick)
	if tick.Rate != 1.0 {
		t.Errorf("Expected default rate 1.0, got %f", tick.Rate)
	}
}

func TestTopicCreator_Flow(t *testing.T) {
	mockDialer := &testutils.MockKafkaDialer{}
	mockClock := &testutils.MockClock{}

	tc := generator.NewTopicCreator(zap.NewNop(), mockDialer, mockClock)

	if ready := tc.Create(context.Background(), []string{"broker:9092"}, "price_ticks"); !ready {
		t.Error("Expected topic to be reported ready")
	}

	if mockDialer.ConnSpy == nil {
		t.Fatal("Dialer was never called")
	}
	if len(mockDialer.ConnSpy.CreatedTopics) == 0 {
		t.Fatal("No topics created")
	}
	if mockDialer.ConnSpy.CreatedTopics[0] != "price_ticks" {
		t.Errorf("Expected topic 'price_ticks', got %s", mockDialer.ConnSpy.CreatedTopics[0])
	}
}

func TestTopicCreator_AllBrokersDown(t *testing.T) {
	mockDialer := &testutils.MockKafkaDialer{FailAll: true}
	tc := generator.NewTopicCreator(zap.NewNop(), mockDialer, &testutils.MockClock{})

	if tc.Create(context.Background(), []string{"b1:9092", "b2:9092"}, "price_ticks") {
		t.Error("Expected failure when no broker is reachable")
	}
	if len(mockDialer.Attempts) != 2 {
		t.Errorf("Expected every broker to be tried, got %v", mockDialer.Attempts)
	}
}

func TestTopicCreator_TimesOutWithoutPartitions(t *testing.T) {
	mockDialer := &testutils.MockKafkaDialer{ConnSpy: &testutils.MockKafkaConn{NoPartitions: true}}
	mockClock := &testutils.MockClock{}
	tc := generator.NewTopicCreator(zap.NewNop(), mockDialer, mockClock)

	if tc.Create(context.Background(), []string{"broker:9092"}, "price_ticks") {
		t.Error("Expected topic not to be ready")
	}
	if mockClock.Slept != time.Second {
		t.Errorf("Expected five 200ms waits, slept %s", mockClock.Slept)
	}
}
