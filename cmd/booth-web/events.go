package main

import (
	"net/http"
	"net/url"
	"time"

	"github.com/fpang/photo-booth/internal/booth"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	pongWait   = 2 * pingPeriod
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     localOrigin,
}

// localOrigin accepts same-host pages and the localhost dev server.
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host || u.Hostname() == "localhost" || u.Hostname() == "127.0.0.1"
}

// GET /api/events
//
// Streams booth.Event values as JSON text messages. The first message is a
// state event for the current session.
func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, unsubscribe := s.session.Subscribe()
	defer unsubscribe()

	// The client never sends anything we use; reading keeps pongs and the
	// close handshake flowing and tells us when it goes away.
	gone := make(chan struct{})
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	st := s.session.Status()
	first := booth.Event{Type: booth.EventState, SessionID: st.ID, State: st.State, Countdown: st.Countdown, At: time.Now()}
	if err := write(conn, first); err != nil {
		return
	}
	log.Debug().Str("remote", r.RemoteAddr).Msg("Event stream opened")

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
				return
			}
			if err := write(conn, ev); err != nil {
				log.Debug().Err(err).Msg("Event stream write failed")
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-gone:
			log.Debug().Str("remote", r.RemoteAddr).Msg("Event stream closed")
			return
		}
	}
}

func write(conn *websocket.Conn, ev booth.Event) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(ev)
}
