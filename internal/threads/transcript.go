package threads

import (
	"fmt"
	"strings"
	"time"

	"sbmod/internal/storage"
)

// RenderTranscript produces the plain-text archive of a thread.
func RenderTranscript(thread storage.Thread, messages []storage.ThreadMessage, closedAt time.Time) string {
	var b strings.Builder

	switch thread.Kind {
	case storage.ThreadKindTicket:
		fmt.Fprintf(&b, "Ticket #%04d\n", thread.TicketNumber)
	default:
		fmt.Fprintf(&b, "Modmail with %s\n", thread.UserID)
	}
	fmt.Fprintf(&b, "Guild: %s\nUser: %s\n", thread.GuildID, thread.UserID)
	fmt.Fprintf(&b, "Opened: %s\nClosed: %s\n\n",
		thread.CreatedAt.UTC().Format(time.RFC3339),
		closedAt.UTC().Format(time.RFC3339))

	for _, msg := range messages {
		role := "user"
		if msg.FromStaff {
			role = "staff"
		}
		fmt.Fprintf(&b, "[%s] %s (%s): %s\n",
			msg.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			msg.AuthorName, role, msg.Content)
	}
	if len(messages) == 0 {
		b.WriteString("(no messages)\n")
	}
	return b.String()
}
