package ipc

import (
	"context"

	"github.com/qorvexhq/qorvex/internal/session"
)

// RequestHandler is the pluggable dispatch target for every request. When
// the server has one attached, every request (including the core four) is
// delegated to it; otherwise the server falls back to handleDefault, which
// only understands Execute/Subscribe/GetState/GetLog and returns an Error
// response for every management variant.
//
// Handle is responsible for writing every response itself via c — for
// Subscribe that means writing a stream of Event responses until the
// subscriber lags or the client disconnects, then returning so the
// connection's read loop can continue with its next request.
type RequestHandler interface {
	Handle(ctx context.Context, c *Conn, req Request)
}

// handleDefault implements the four core request types directly against
// Session and Executor; every other variant gets an Error response naming
// the missing management handler.
func (s *Server) handleDefault(ctx context.Context, c *Conn, req Request) {
	switch r := req.(type) {
	case Execute:
		result := s.Executor.Execute(ctx, r.Action, r.Tag)
		_ = c.WriteResponse(ActionResult{
			Success:    result.Success,
			Message:    result.Message,
			Screenshot: result.Screenshot,
			Data:       result.Data,
		})

	case Subscribe:
		s.streamSubscription(ctx, c)

	case GetState:
		_ = c.WriteResponse(State{
			SessionID:  s.Session.ID,
			Screenshot: s.Session.LatestScreenshot(),
		})

	case GetLog:
		_ = c.WriteResponse(Log{Entries: s.Session.Entries()})

	default:
		_ = c.WriteResponse(ErrorResponse{Message: "ipc: " + req.requestTag() + " requires a request handler"})
	}
}

// streamSubscription writes Event responses for every session event until
// the subscriber's channel is closed (it lagged past capacity) or the
// server is shutting down. Ending the session publishes Ended but does not
// close the channel. It then returns, handing the connection back to its read loop so
// the client can resubscribe or resync via GetLog on the same connection.
func (s *Server) streamSubscription(ctx context.Context, c *Conn) {
	ch, cancel := s.Session.Subscribe()
	defer cancel()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := c.WriteResponse(EventResponse{Event: encodeSessionEvent(ev)}); err != nil {
				return
			}
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}

// encodeSessionEvent renders a session.Event as the JSON-friendly value
// EventResponse embeds, tagging it the same way Request/Response are
// tagged (a "type" discriminator alongside the event's fields).
func encodeSessionEvent(ev session.Event) map[string]any {
	switch e := ev.(type) {
	case session.ActionLogged:
		return map[string]any{"type": "action_logged", "entry": e.Entry}
	case session.ScreenshotUpdated:
		return map[string]any{"type": "screenshot_updated", "screenshot": e.Screenshot}
	case session.Started:
		return map[string]any{"type": "started", "session_id": e.SessionID}
	case session.Ended:
		return map[string]any{"type": "ended"}
	default:
		return map[string]any{"type": "unknown"}
	}
}
