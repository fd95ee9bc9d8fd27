package assistant

import (
	"slices"

	"github.com/postvisit/carecore/provider"
	"github.com/postvisit/carecore/records"
)

// history converts persisted chat messages to provider messages in
// creation order, keeping at most the last limit messages. limit <= 0 keeps
// all of them.
func history(session *records.Session, limit int) []provider.Message {
	if session == nil {
		return nil
	}
	msgs := slices.Clone(session.Messages)
	slices.SortStableFunc(msgs, func(a, b records.ChatMessage) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]provider.Message, 0, len(msgs))
	for _, m := range msgs {
		role := provider.RoleUser
		if m.Role == records.RoleAssistant {
			role = provider.RoleAssistant
		}
		out = append(out, provider.Message{Role: role, Content: m.Content})
	}
	return out
}
