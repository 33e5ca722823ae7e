package status

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"ema-bracket-bot/config"
	"ema-bracket-bot/interfaces"
	"ema-bracket-bot/logging"
	"ema-bracket-bot/types"
)

type statusResponse struct {
	Time time.Time `json:"time"`
	types.StatusSnapshot
}

func newMux(source interfaces.StatusSource) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		resp := statusResponse{
			Time:           time.Now(),
			StatusSnapshot: source.Snapshot(),
		}

		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			http.Error(w, "failed to encode status", http.StatusInternalServerError)
			return
		}
	})
	return mux
}

// StartServer starts a local HTTP status server for diagnostics. It reads
// the strategy through the snapshot interface only, so the trading loop is
// never blocked by a status request.
func StartServer(cfg *config.Config, source interfaces.StatusSource, logger logging.LoggerInterface) *http.Server {
	addr := strings.TrimSpace(cfg.StatusAddr)
	if addr == "" || strings.EqualFold(addr, "off") || strings.EqualFold(addr, "disabled") {
		logger.Info("Status server disabled")
		return nil
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           newMux(source),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Status server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Status server error: %v", err)
		}
	}()

	return server
}
