package messages

import (
	"cmp"
	"slices"
	"time"

	"github.com/parleyhq/parley-server/internal/store"
)

// Summary describes one conversation from the requester's point of view.
type Summary struct {
	UserID          int64
	Username        string
	LastMessageID   int64
	LastMessage     string
	LastAttachments int
	LastMessageAt   time.Time
	LastSenderID    int64
	UnreadCount     int
}

// Summarize folds every message userID sent or received into one summary per
// counterpart, ordered by most recent interaction. The input is not modified.
func Summarize(userID int64, msgs []*store.Message) []Summary {
	sorted := slices.Clone(msgs)
	slices.SortStableFunc(sorted, newestFirst)

	out := make([]Summary, 0)
	index := make(map[int64]int)
	for _, m := range sorted {
		other := m.Counterpart(userID)

		i, seen := index[other]
		if !seen {
			i = len(out)
			index[other] = i
			out = append(out, Summary{
				UserID:          other,
				LastMessageID:   m.ID,
				LastMessage:     m.Content,
				LastAttachments: len(m.Attachments),
				LastMessageAt:   m.CreatedAt,
				LastSenderID:    m.SenderID,
			})
		}

		// Every message counts toward unread, not only the newest one.
		if m.ReceiverID == userID && !m.IsRead {
			out[i].UnreadCount++
		}
	}
	return out
}

func newestFirst(a, b *store.Message) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}
