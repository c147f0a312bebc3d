package models

type ChatStatus string

const (
	ChatOpen   ChatStatus = "OPEN"
	ChatClosed ChatStatus = "CLOSED"
)

// Chat is a conversation between a customer and staff, scoped either to a
// car (CarID set) or to general support (CarID empty).
type Chat struct {
	ID         string     `json:"id"`
	Status     ChatStatus `json:"status"`
	CustomerID string     `json:"customerId"`
	CarID      string     `json:"carId,omitempty"`
	ManagerID  string     `json:"managerId,omitempty"`
	// LastMessageTS stays zero until the first accepted message.
	LastMessageTS int64 `json:"lastMessageTs,omitempty"`
	CreatedTS     int64 `json:"createdTs"`
	UpdatedTS     int64 `json:"updatedTs"`
	Deleted       bool  `json:"deleted,omitempty"`
	DeletedTS     int64 `json:"deletedTs,omitempty"`
}

func (c Chat) IsDeleted() bool { return c.Deleted }

// IsSupport reports whether the chat is a general support chat.
func (c Chat) IsSupport() bool { return c.CarID == "" }
