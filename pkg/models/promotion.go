package models

type Promotion struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	DiscountPercent int    `json:"discountPercent"`
	StartsTS        int64  `json:"startsTs"`
	EndsTS          int64  `json:"endsTs"`
	Active          bool   `json:"active"`
	CreatedByID     string `json:"createdById"`
	CreatedTS       int64  `json:"createdTs"`
	Deleted         bool   `json:"deleted,omitempty"`
	DeletedTS       int64  `json:"deletedTs,omitempty"`
}

func (p Promotion) IsDeleted() bool { return p.Deleted }

// Notification is a transient fan-out payload addressed to one user. It is
// never persisted.
type Notification struct {
	RecipientID string `json:"userId"`
	Title       string `json:"title"`
	Body        string `json:"message"`
	OccurredTS  int64  `json:"createdTs"`
}
