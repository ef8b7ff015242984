package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

const writeWait = 5 * time.Second

// TranslationsHandler pushes translation events over WebSocket.
type TranslationsHandler struct {
	live *Live
	log  logrus.FieldLogger
}

// NewTranslationsHandler creates a new TranslationsHandler over live.
func NewTranslationsHandler(live *Live, log logrus.FieldLogger) *TranslationsHandler {
	return &TranslationsHandler{live: live, log: log}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *TranslationsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade error")
		return
	}
	defer conn.Close()

	events, unsubscribe := h.live.Subscribe()
	defer unsubscribe()

	h.log.WithField("remote", r.RemoteAddr).Info("translation client connected")
	defer h.log.WithField("remote", r.RemoteAddr).Info("translation client disconnected")

	// Reads only detect the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case ev := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
