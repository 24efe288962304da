package api

import (
	"encoding/base64"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/bbernstein/lumenbridge-go/internal/services/ingest"
	"github.com/bbernstein/lumenbridge-go/internal/services/pubsub"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for WebSocket
	},
}

// dmxMessage is one winning frame pushed to monitor clients.
type dmxMessage struct {
	Universe uint16 `json:"universe"`
	Protocol string `json:"protocol"`
	Priority uint8  `json:"priority"`
	Sequence uint8  `json:"sequence"`
	SourceID string `json:"sourceId"`
	// Data is the 512-byte universe, base64 encoded.
	Data string `json:"data"`
}

// handleDMXSocket streams winning DMX frames to a websocket client. Slow
// clients miss frames rather than stalling the pipeline.
func (s *Server) handleDMXSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("⚠️ DMX monitor upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub := s.bus.Subscribe(pubsub.TopicDMXOutput, 16)
	defer sub.Unsubscribe()

	// Reader goroutine: detect client close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case msg, ok := <-sub.Channel:
			if !ok {
				return
			}
			frame, ok := msg.(*ingest.Frame)
			if !ok {
				continue
			}
			out := dmxMessage{
				Universe: frame.Universe,
				Protocol: frame.Protocol,
				Priority: frame.Priority,
				Sequence: frame.Sequence,
				SourceID: frame.SourceID,
				Data:     base64.StdEncoding.EncodeToString(frame.Data[:]),
			}
			if err := conn.WriteJSON(out); err != nil {
				return
			}
		}
	}
}
