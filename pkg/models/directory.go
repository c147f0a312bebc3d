package models

// Role is the caller's role in the dealership.
type Role string

const (
	RoleClient  Role = "CLIENT"
	RoleManager Role = "MANAGER"
	RoleAdmin   Role = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// Staff reports whether r is a manager or an admin.
func (r Role) Staff() bool { return r == RoleManager || r == RoleAdmin }

// User is the local projection of an identity. Users are soft-deleted only.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Role      Role   `json:"role"`
	CreatedTS int64  `json:"createdTs"`
	UpdatedTS int64  `json:"updatedTs"`
	Deleted   bool   `json:"deleted,omitempty"`
	DeletedTS int64  `json:"deletedTs,omitempty"`
}

func (u User) IsDeleted() bool { return u.Deleted }

type CarStatus string

const (
	CarAvailable CarStatus = "AVAILABLE"
	CarReserved  CarStatus = "RESERVED"
	CarSold      CarStatus = "SOLD"
	CarArchived  CarStatus = "ARCHIVED"
)

// Car is the minimal catalog entry leads and chats reference.
type Car struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Status    CarStatus `json:"status"`
	UpdatedTS int64     `json:"updatedTs"`
	Deleted   bool      `json:"deleted,omitempty"`
	DeletedTS int64     `json:"deletedTs,omitempty"`
}

func (c Car) IsDeleted() bool { return c.Deleted }
