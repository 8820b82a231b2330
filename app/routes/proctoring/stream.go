package proctoring

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"campus-portal/app/routes/auth"
	"campus-portal/app/services/fanout"
	ps "campus-portal/app/services/proctoring"
)

const (
	keepAliveInterval = 15 * time.Second
	scopeCheckTimeout = 5 * time.Second
)

// SessionStreamAPI streams one session's live updates as server-sent events.
func SessionStreamAPI(c *fiber.Ctx, svc *ps.Service, hub *fanout.Hub) error {
	if _, err := sessionForCaller(c, svc); err != nil {
		return writeError(c, err)
	}
	return stream(c, hub.SubscribeSession(c.Params("id")), nil)
}

// AlertStreamAPI streams new and updated alerts as server-sent events.
// Instructors only receive alerts for sessions of their own exams and quizzes.
func AlertStreamAPI(c *fiber.Ctx, svc *ps.Service, hub *fanout.Hub) error {
	scope := scopeOf(auth.CurrentUser(c))
	if scope.AllScopes {
		return stream(c, hub.SubscribeAlerts(), nil)
	}
	return stream(c, hub.SubscribeAlerts(), ownedSessions(svc, scope))
}

// ownedSessions admits messages whose session is in scope. Answers are cached
// for the life of the stream. A failed lookup drops the message uncached.
func ownedSessions(svc *ps.Service, scope ps.ReviewerScope) func(fanout.Message) bool {
	owned := make(map[string]bool)
	return func(msg fanout.Message) bool {
		if ok, seen := owned[msg.SessionID]; seen {
			return ok
		}
		ctx, cancel := context.WithTimeout(context.Background(), scopeCheckTimeout)
		defer cancel()
		_, err := svc.AuthorizeReviewer(ctx, msg.SessionID, scope)
		switch {
		case err == nil:
			owned[msg.SessionID] = true
		case errors.Is(err, ps.ErrNotFound):
			owned[msg.SessionID] = false
		default:
			slog.Warn("alert stream scope check failed", "session_id", msg.SessionID, "error", err)
			return false
		}
		return owned[msg.SessionID]
	}
}

// stream writes subscription messages accepted by allow (all when nil) until
// the client goes away or the hub closes. A failed write unsubscribes.
func stream(c *fiber.Ctx, sub *fanout.Subscription, allow func(fanout.Message) bool) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer sub.Unsubscribe()

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()

		fmt.Fprint(w, ": connected\n\n")
		if err := w.Flush(); err != nil {
			return
		}
		for {
			select {
			case msg, ok := <-sub.C:
				if !ok {
					return
				}
				if allow != nil && !allow(msg) {
					continue
				}
				if err := writeEvent(w, msg); err != nil {
					slog.Debug("stream client gone", "topic", msg.Topic, "error", err)
					return
				}
			case <-ticker.C:
				fmt.Fprint(w, ": ping\n\n")
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})
	return nil
}

func writeEvent(w *bufio.Writer, msg fanout.Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Kind, b)
	return w.Flush()
}
