package authress

import "time"

// ============================================================================
// Roles
// ============================================================================

// Role groups permissions that can be granted together in access records.
type Role struct {
	RoleID      string           `json:"roleId"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Permissions []RolePermission `json:"permissions"`
	LastUpdated *time.Time       `json:"lastUpdated,omitempty"`
}

// RolePermission is one action a role allows.
type RolePermission struct {
	Action   string `json:"action"`
	Allow    bool   `json:"allow"`
	Grant    bool   `json:"grant"`
	Delegate bool   `json:"delegate"`
}

// ============================================================================
// Access records
// ============================================================================

// RecordStatus is the lifecycle state of an access record.
type RecordStatus string

const (
	RecordStatusActive  RecordStatus = "ACTIVE"
	RecordStatusDeleted RecordStatus = "DELETED"
)

// AccessRecord grants roles on resources to a set of users.
type AccessRecord struct {
	RecordID    string            `json:"recordId,omitempty"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Status      RecordStatus      `json:"status,omitempty"`
	Account     *AccountReference `json:"account,omitempty"`
	Users       []UserReference   `json:"users,omitempty"`
	Admins      []UserReference   `json:"admins,omitempty"`
	Statements  []Statement       `json:"statements"`
	Links       *Links            `json:"links,omitempty"`
}

// Statement grants Roles on Resources.
type Statement struct {
	Roles     []string            `json:"roles"`
	Resources []ResourceReference `json:"resources"`
	Users     []UserReference     `json:"users,omitempty"`
}

type UserReference struct {
	UserID string `json:"userId"`
}

type ResourceReference struct {
	ResourceURI string `json:"resourceUri"`
}

type AccountReference struct {
	AccountID string `json:"accountId"`
}

// ============================================================================
// Accounts
// ============================================================================

// Account is a tenant of the service.
type Account struct {
	AccountID   string    `json:"accountId"`
	CreatedTime time.Time `json:"createdTime"`
	Domain      string    `json:"domain,omitempty"`
	Company     *Company  `json:"company,omitempty"`
	Links       *Links    `json:"links,omitempty"`
}

type Company struct {
	Name string `json:"name"`
}

// ============================================================================
// Shared
// ============================================================================

type Links struct {
	Self Link `json:"self"`
}

type Link struct {
	Href string `json:"href"`
}
