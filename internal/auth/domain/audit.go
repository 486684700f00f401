package domain

import "time"

type AuditAction string

const (
	AuditLogin         AuditAction = "LOGIN"
	AuditLogout        AuditAction = "LOGOUT"
	AuditRegister      AuditAction = "REGISTER"
	AuditTokenRefresh  AuditAction = "TOKEN_REFRESH"
	AuditFailedLogin   AuditAction = "FAILED_LOGIN"
	AuditAccountLocked AuditAction = "ACCOUNT_LOCKED"
	AuditEmailVerified AuditAction = "EMAIL_VERIFIED"
)

// AuditEntry is an append-only security event. UserID is empty when the
// event could not be attributed (e.g. a failed login for an unknown email).
type AuditEntry struct {
	ID           int64
	UserID       string
	Action       AuditAction
	IPAddress    string
	UserAgent    string
	Metadata     map[string]any
	Success      bool
	ErrorMessage string
	CreatedAt    time.Time
}
