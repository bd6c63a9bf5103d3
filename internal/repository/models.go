package repository

import "time"

// Role is a user's authorization tier.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// User is the persisted credential and usage record, unique by email.
// Emails are stored exactly as given; no normalization is performed.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         Role

	IsVerified                 bool
	VerificationToken          *string
	VerificationTokenExpiresAt *time.Time
	ResetToken                 *string
	ResetTokenExpiresAt        *time.Time
	FailedLoginAttempts        int
	LockedUntil                *time.Time
	LastPasswordChange         *time.Time

	DailyCount    int
	MonthlyCount  int
	TotalCount    int
	DailyLimit    int
	MonthlyLimit  int
	LastResetDate time.Time
	LastUsageDate *time.Time

	IsActive         bool
	IsSuspended      bool
	SuspensionReason *string
	LastLogin        *time.Time
	LastActivity     *time.Time

	CreatedAt       time.Time
	UpdatedAt       time.Time
	SignupSource    string
	SignupIP        *string
	SignupUserAgent *string
}

// Locked reports whether the account is inside an active lockout window.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// ProfilePatch is the enumerated set of fields a user may change about
// themselves. Credentials, role, email and the authentication block are not
// reachable through it.
type ProfilePatch struct {
	FirstName *string
	LastName  *string
}

// Session is an audit record of a device login. Authorization itself is the
// stateless bearer token; sessions only track devices.
type Session struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	TokenHash      string    `json:"-"`
	DeviceType     *string   `json:"device_type,omitempty"`
	Browser        *string   `json:"browser,omitempty"`
	OS             *string   `json:"os,omitempty"`
	IPAddress      *string   `json:"ip_address,omitempty"`
	UserAgent      *string   `json:"user_agent,omitempty"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// ActivityCategory groups security-relevant events.
type ActivityCategory string

const (
	CategoryAuth       ActivityCategory = "auth"
	CategoryToolUsage  ActivityCategory = "tool_usage"
	CategoryProfile    ActivityCategory = "profile"
	CategoryAdmin      ActivityCategory = "admin"
	CategorySuggestion ActivityCategory = "suggestion"
	CategorySystem     ActivityCategory = "system"
)

// ActivityResult tags an event's outcome.
type ActivityResult string

const (
	ResultSuccess ActivityResult = "success"
	ResultFailure ActivityResult = "failure"
	ResultWarning ActivityResult = "warning"
)

// ActivityEntry is an immutable, append-only audit event. Entries are never
// updated; old entries are removed by TTL cleanup only.
type ActivityEntry struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Action    string            `json:"action"`
	Category  ActivityCategory  `json:"category"`
	Result    ActivityResult    `json:"result"`
	Level     string            `json:"level"`
	Details   map[string]string `json:"details,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// SuggestionStatus is the review state of a piece of user feedback.
type SuggestionStatus string

const (
	SuggestionPending     SuggestionStatus = "pending"
	SuggestionReviewing   SuggestionStatus = "reviewing"
	SuggestionApproved    SuggestionStatus = "approved"
	SuggestionRejected    SuggestionStatus = "rejected"
	SuggestionImplemented SuggestionStatus = "implemented"
)

// Suggestion is user-submitted feedback with an admin review workflow.
type Suggestion struct {
	ID            string           `json:"id"`
	UserID        string           `json:"user_id"`
	Title         string           `json:"title"`
	Message       string           `json:"message"`
	Status        SuggestionStatus `json:"status"`
	AdminResponse *string          `json:"admin_response,omitempty"`
	RespondedAt   *time.Time       `json:"responded_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}
