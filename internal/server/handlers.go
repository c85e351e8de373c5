package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"

	"broadcastbot/internal/router"
	"broadcastbot/pkg/logx"
)

// handleWebhookPost acknowledges immediately and offloads the event. The
// platform is never told to retry from this side: the response is 200
// regardless of the internal outcome.
func (s *Server) handleWebhookPost(w http.ResponseWriter, r *http.Request) {
	var ev router.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		s.log.Debug("undecodable webhook payload ignored", logx.Err(err))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
		return
	}
	s.log.Debug("webhook received",
		logx.String("resource", ev.Resource), logx.String("event", ev.Event))

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		defer cancel()
		s.events.HandleEvent(ctx, &ev)
	}()

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleWebhookRegister treats its own URL as the webhook target, reconciles
// the subscription set, and renders a confirmation page. Repeated calls
// always converge on the same final subscription set.
func (s *Server) handleWebhookRegister(w http.ResponseWriter, r *http.Request) {
	hosted := requestURL(r)

	var page string
	if bot, err := s.identity.Me(r.Context()); err == nil {
		page = fmt.Sprintf(
			`<center><img src=%q alt=%q style="width:256; height:256;"></center>`+
				`<center><h2><b>Congratulations! Your <i style="color:#ff8000;">%s</i> bot is up and running.</b></h2></center>`,
			bot.Avatar, html.EscapeString(bot.DisplayName), html.EscapeString(bot.DisplayName))
	}
	page += fmt.Sprintf(`<center><b>I'm hosted at: <a href=%q>%s</a></center>`,
		hosted, html.EscapeString(hosted))

	if err := s.webhooks.Reconcile(r.Context(), hosted); err != nil {
		s.log.Error("webhook registration failed", logx.Err(err))
		page += "<center><b>Tried to create a new webhook but failed, see application log for details.</center>"
	} else {
		page += "<center><b>New webhook created successfully</center>"
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(page))
}
