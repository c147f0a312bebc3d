package models

// MessageKind distinguishes customer/staff text from system entries.
type MessageKind string

const (
	KindText   MessageKind = "TEXT"
	KindSystem MessageKind = "SYSTEM"
)

// MaxMessageLen is the upper bound on message text, counted in characters.
const MaxMessageLen = 2000

type Message struct {
	ID       string      `json:"id"`
	ChatID   string      `json:"chatId"`
	AuthorID string      `json:"authorId"`
	Text     string      `json:"text"`
	Kind     MessageKind `json:"kind"`
	// TS is the creation timestamp (ns) and the sole ordering key; ties
	// fall back to insertion order in the store key.
	TS int64 `json:"ts"`
	// Deleted is the compliance redaction flag. Redacted messages keep
	// their position and are hidden from reads.
	Deleted bool `json:"deleted,omitempty"`
}

func (m Message) IsDeleted() bool { return m.Deleted }
