// Package export renders a session's transcript. It consumes the store's
// read models only.
package export

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/orionlabs/orion-go/internal/store"
)

// Format selects an export rendering.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// transcript is the structured export payload.
type transcript struct {
	SessionID string          `json:"session_id"`
	Title     string          `json:"title"`
	Model     string          `json:"model"`
	CreatedAt time.Time       `json:"created_at"`
	Messages  []store.Message `json:"messages"`
}

// Render produces the session transcript in the requested format.
func Render(sess *store.Session, msgs []store.Message, format Format) (string, string, error) {
	switch format {
	case FormatMarkdown:
		return renderMarkdown(sess, msgs), "text/markdown; charset=utf-8", nil
	case FormatJSON:
		b, err := json.MarshalIndent(transcript{
			SessionID: sess.ID,
			Title:     sess.Title,
			Model:     sess.Model,
			CreatedAt: sess.CreatedAt,
			Messages:  msgs,
		}, "", "  ")
		if err != nil {
			return "", "", err
		}
		return string(b), "application/json", nil
	case FormatText, "":
		return renderText(sess, msgs), "text/plain; charset=utf-8", nil
	default:
		return "", "", fmt.Errorf("unknown export format %q", format)
	}
}

func renderText(sess *store.Session, msgs []store.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", sess.Title)
	fmt.Fprintf(&b, "Exported %s\n\n", time.Now().UTC().Format(time.RFC3339))
	for _, m := range msgs {
		fmt.Fprintf(&b, "[%s] %s:\n%s\n\n", m.CreatedAt.Format(time.RFC3339), m.Role, m.Content)
	}
	return b.String()
}

func renderMarkdown(sess *store.Session, msgs []store.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", sess.Title)
	fmt.Fprintf(&b, "Model: `%s`\n\n", sess.Model)
	for _, m := range msgs {
		fmt.Fprintf(&b, "**%s** (%s):\n\n%s\n\n---\n\n", m.Role, m.CreatedAt.Format(time.RFC3339), m.Content)
	}
	return b.String()
}
