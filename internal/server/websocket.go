package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"goa.design/clue/log"
	"golang.org/x/sync/errgroup"

	"github.com/michaelbrown/pyrun/internal/analysis"
	"github.com/michaelbrown/pyrun/internal/capture"
	"github.com/michaelbrown/pyrun/internal/storage"
)

// wsInflight bounds concurrent requests per connection.
const wsInflight = 4

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsIncoming is a request from the client.
type wsIncoming struct {
	ID     string          `json:"id"`
	Type   string          `json:"type"` // run, lint or autocomplete
	Code   string          `json:"code"`
	Cursor analysis.Cursor `json:"cursor"`
}

// wsOutgoing is the single reply to one request.
type wsOutgoing struct {
	ID          string                `json:"id"`
	Type        string                `json:"type"` // result, diagnostics, completions or error
	RunID       string                `json:"run_id,omitempty"`
	Result      *capture.Result       `json:"result,omitempty"`
	Diagnostics []analysis.Diagnostic `json:"diagnostics,omitempty"`
	Completions []analysis.Completion `json:"completions,omitempty"`
	Error       string                `json:"error,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf(r.Context(), err, "websocket upgrade")
		return
	}
	defer conn.Close()

	// The request context ends with the handler; requests outlive reads.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	ac := s.conns.Add(conn, cancel)
	defer s.conns.Remove(ac.ID)

	var g errgroup.Group
	g.SetLimit(wsInflight)
	defer g.Wait()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Errorf(ctx, err, "websocket read")
			}
			// Nobody is left to receive replies.
			cancel()
			return
		}

		var msg wsIncoming
		if err := json.Unmarshal(data, &msg); err != nil {
			ac.WriteJSON(wsOutgoing{Type: "error", Error: "invalid message: " + err.Error()})
			continue
		}

		g.Go(func() error {
			reply := s.processWebSocketMessage(ctx, msg)
			if err := ac.WriteJSON(reply); err != nil {
				log.Errorf(ctx, err, "websocket write")
			}
			return nil
		})
	}
}

func (s *Server) processWebSocketMessage(ctx context.Context, msg wsIncoming) wsOutgoing {
	reply := wsOutgoing{ID: msg.ID}

	switch msg.Type {
	case "run":
		result, runID := s.svc.Run(ctx, storage.SourceWebSocket, msg.Code)
		reply.Type = "result"
		reply.RunID = runID
		reply.Result = &result
	case "lint":
		reply.Type = "diagnostics"
		reply.Diagnostics = s.svc.Lint(ctx, msg.Code)
	case "autocomplete":
		items, err := s.svc.Complete(ctx, msg.Code, msg.Cursor)
		if err != nil {
			reply.Type = "error"
			reply.Error = err.Error()
			return reply
		}
		reply.Type = "completions"
		reply.Completions = items
	default:
		reply.Type = "error"
		reply.Error = "unknown request type: " + msg.Type
	}
	return reply
}
