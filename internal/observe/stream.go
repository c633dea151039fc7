package observe

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/jask/dexnav/internal/navigator"
)

const writeTimeout = 5 * time.Second

// handleStream pushes a state snapshot over a websocket on every change,
// starting with the current one. Client messages are ignored.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.logger.Warn("websocket accept", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			s.logger.Debug("websocket close", "error", closeErr)
		}
	}()

	// CloseRead discards client frames and cancels ctx once the peer goes away.
	ctx := ws.CloseRead(r.Context())

	states, unsubscribe := s.nav.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			if err := s.push(ctx, ws, st); err != nil {
				if !errors.Is(err, context.Canceled) {
					s.logger.Debug("websocket write", "error", err)
				}
				return
			}
		}
	}
}

func (s *Server) push(ctx context.Context, ws *websocket.Conn, st navigator.State) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, stateResponse{
		State:    st,
		InFlight: s.nav.InFlight(),
		Range:    s.nav.Range().String(),
	})
}
