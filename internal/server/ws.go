package server

import (
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog/log"

	"github.com/greenroute/gateway/internal/config"
	"github.com/greenroute/gateway/internal/ledger"
	"github.com/greenroute/gateway/internal/semcache"
)

// statsSnapshot is one push on the live stats feed.
type statsSnapshot struct {
	Timestamp string         `json:"timestamp"`
	Cache     semcache.Stats `json:"cache"`
	Savings   ledger.Totals  `json:"savings"`
}

// handleStatsSocket streams cache and savings stats until the client
// disconnects. Read side is drained only for control frames; this feed is
// push-only.
func (s *Server) handleStatsSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Debug().Err(err).Msg("stats socket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	ticker := time.NewTicker(config.DefaultStatsPushInterval)
	defer ticker.Stop()

	for {
		snap := statsSnapshot{Timestamp: time.Now().UTC().Format(time.RFC3339)}
		if s.cache != nil {
			snap.Cache = s.cache.Stats()
		}
		if totals, err := s.ledger.Totals(ctx, ledger.DefaultUserID); err == nil {
			snap.Savings = totals
		}

		if err := wsjson.Write(ctx, conn, snap); err != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
