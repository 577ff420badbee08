package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/evgeniymelnikov/traderimo-test-task/cmd/gateway/internal/repository"
)

// PricesHandler serves GET /prices?symbols=USD/TRY,USD/BTC with the latest
// stored rates. Unknown or unsupported symbols are left out of the answer.
func PricesHandler(store repository.PriceStore, validTickers map[string]bool, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var symbols []string
		for _, s := range strings.Split(r.URL.Query().Get("symbols"), ",") {
			s = strings.ToUpper(strings.TrimSpace(s))
			if validTickers[s] {
				symbols = append(symbols, s)
			}
		}
		if len(symbols) == 0 {
			http.Error(w, "no valid symbols", http.StatusBadRequest)
			return
		}

		ticks, err := store.GetLatest(r.Context(), symbols)
		if err != nil {
			logger.Error("Failed to load latest prices", zap.Error(err))
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(ticks); err != nil {
			logger.Debug("Failed to write prices response", zap.Error(err))
		}
	}
}
