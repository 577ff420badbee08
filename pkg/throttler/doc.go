// Package throttler fans a single stream of price ticks out to many
// independently paced listeners.
//
// Every listener gets its own coalescing queue and a dedicated delivery
// goroutine. A slow listener never holds up the producer or its peers;
// it simply observes fewer ticks, always the most recent rate per symbol,
// in the order the symbols first became pending.
//
// A [Dispatcher] is itself a [PriceListener], so dispatchers can be chained.
package throttler
