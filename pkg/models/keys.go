package models

import "strings"

const (
	PriceKeyPrefix     = "price:"
	PriceChannelPrefix = "prices."
)

// PriceKey is the Redis key holding the latest rate for symbol.
func PriceKey(symbol string) string { return PriceKeyPrefix + symbol }

// PriceChannel is the Redis pub/sub channel for symbol.
func PriceChannel(symbol string) string { return PriceChannelPrefix + symbol }

// SymbolFromChannel reverses PriceChannel.
func SymbolFromChannel(channel string) (string, bool) {
	symbol, ok := strings.CutPrefix(channel, PriceChannelPrefix)
	if !ok || symbol == "" {
		return "", false
	}
	return symbol, true
}
