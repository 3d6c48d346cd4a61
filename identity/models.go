package identity

import "time"

type Role string

const (
	RoleArbitrator     Role = "arbitrator"
	RoleSeniorReviewer Role = "senior_reviewer"
	RoleParty          Role = "party"
	RoleAdmin          Role = "admin"
)

// User is the domain representation of an account that can act on cases:
// arbitrators who review drafts, senior reviewers who take escalations, and
// the claimant/respondent parties. It mirrors the users table and carries no
// JSON annotations so it can be reused by different presentation layers.
type User struct {
	ID              string
	Email           string
	FullName        string
	PasswordHash    string
	Role            Role
	Active          bool
	YearsExperience int
	CompletedCases  int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RegisterRequest contains account registration data supplied by callers.
type RegisterRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	FullName        string `json:"full_name"`
	Role            Role   `json:"role"`
	YearsExperience int    `json:"years_experience"`
}

// LoginRequest contains login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
