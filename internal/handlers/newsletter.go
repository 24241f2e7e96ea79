package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/arecko/backend/internal/middleware"
	"github.com/arecko/backend/internal/newsletter"
)

// NewsletterSender queues a newsletter to comma-separated recipients.
type NewsletterSender interface {
	SendNewsletter(senderName, replyTo, recipients, content string) int
}

// Drafter writes newsletter drafts.
type Drafter interface {
	Generate(ctx context.Context, req newsletter.Request) newsletter.Result
}

type newsletterRequest struct {
	Content    string `json:"content"`
	Recipients string `json:"recipients"`
}

// HandleSendNewsletter mails content to the listed recipients with Reply-To
// set to the sender.
func HandleSendNewsletter(sender NewsletterSender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req newsletterRequest
		if err := decodeJSON(w, r, &req); err != nil {
			fail(w, r, err)
			return
		}
		if strings.TrimSpace(req.Content) == "" || strings.TrimSpace(req.Recipients) == "" {
			writeError(w, http.StatusBadRequest, "content and recipients are required")
			return
		}

		actor := middleware.UserFrom(r.Context())
		n := sender.SendNewsletter(actor.Username, actor.Email, req.Recipients, req.Content)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"sent":    n,
			"message": fmt.Sprintf("Newsletter sent to %d recipient(s)!", n),
		})
	}
}

// HandleGenerateNewsletter drafts a newsletter body. It always answers with
// content, falling back to a template when the model is unavailable.
func HandleGenerateNewsletter(d Drafter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req newsletter.Request
		if err := decodeJSON(w, r, &req); err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, d.Generate(r.Context(), req))
	}
}
