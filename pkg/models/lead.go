package models

type LeadType string

const (
	LeadTestDrive LeadType = "TEST_DRIVE"
	LeadReserve   LeadType = "RESERVE"
	LeadQuestion  LeadType = "QUESTION"
)

type LeadStatus string

const (
	LeadNew        LeadStatus = "NEW"
	LeadInProgress LeadStatus = "IN_PROGRESS"
	LeadApproved   LeadStatus = "APPROVED"
	LeadRejected   LeadStatus = "REJECTED"
)

// Terminal reports whether no further transitions are modeled from s.
func (s LeadStatus) Terminal() bool {
	return s == LeadApproved || s == LeadRejected
}

type Lead struct {
	ID                string     `json:"id"`
	Type              LeadType   `json:"type"`
	Status            LeadStatus `json:"status"`
	CustomerID        string     `json:"customerId"`
	CarID             string     `json:"carId"`
	AssignedManagerID string     `json:"assignedManagerId,omitempty"`
	PreferredTS       int64      `json:"preferredTs,omitempty"`
	Message           string     `json:"message,omitempty"`
	ManagerComment    string     `json:"managerComment,omitempty"`
	CreatedTS         int64      `json:"createdTs"`
	UpdatedTS         int64      `json:"updatedTs"`
	Deleted           bool       `json:"deleted,omitempty"`
	DeletedTS         int64      `json:"deletedTs,omitempty"`
}

func (l Lead) IsDeleted() bool { return l.Deleted }
