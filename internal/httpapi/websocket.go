package httpapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/R3E-Network/solver_layer/internal/errors"
	"github.com/R3E-Network/solver_layer/internal/events"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10
	streamBuffer     = 256
)

// handleStream upgrades to a websocket and pushes feed events as JSON text
// frames. ?since=N replays buffered events with a sequence above N first.
// A client that falls streamBuffer events behind is disconnected.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var since uint64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, r, errors.InvalidArgument("since", "expected sequence number"))
			return
		}
		since = n
	}
	var filter events.Filter
	if contract := r.URL.Query().Get("contract"); contract != "" {
		filter = func(e events.Event) bool { return e.Contract == contract }
	}

	ch := make(chan events.Event, streamBuffer)
	overflow := make(chan struct{})
	var once sync.Once
	// subscribed before the upgrade and the replay so no event falls in a gap
	unsubscribe := s.feed.SubscribeFiltered(filter, func(e events.Event) {
		select {
		case ch <- e:
		default:
			once.Do(func() { close(overflow) })
		}
	})
	defer unsubscribe()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithContext(r.Context()).WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	last := since
	send := func(e events.Event) bool {
		if e.Seq <= last {
			return true
		}
		last = e.Seq
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		return conn.WriteJSON(e) == nil
	}

	if since > 0 {
		for _, e := range s.feed.Since(since) {
			if filter != nil && !filter(e) {
				continue
			}
			if !send(e) {
				return
			}
		}
	}

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case e := <-ch:
			if !send(e) {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-overflow:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "event stream lagging"),
				time.Now().Add(streamWriteWait))
			return
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
