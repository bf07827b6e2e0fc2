package domain

import "time"

// AuditAction enumerates security-relevant actions recorded in the audit
// trail.
type AuditAction string

const (
	AuditLoginSucceeded       AuditAction = "auth.login.succeeded"
	AuditLoginFailed          AuditAction = "auth.login.failed"
	AuditAccountLocked        AuditAction = "auth.account.locked"
	AuditStepUpSucceeded      AuditAction = "auth.stepup.succeeded"
	AuditStepUpFailed         AuditAction = "auth.stepup.failed"
	AuditTheftDetected        AuditAction = "auth.token.theft_detected"
	AuditTokensRevoked        AuditAction = "auth.token.revoked_all"
	AuditPasswordChanged      AuditAction = "auth.password.changed"
	AuditTOTPEnabled          AuditAction = "auth.totp.enabled"
	AuditTOTPDisabled         AuditAction = "auth.totp.disabled"
	AuditImpersonationStarted AuditAction = "auth.impersonation.started"
	AuditImpersonationEnded   AuditAction = "auth.impersonation.ended"
	AuditImpersonationBlocked AuditAction = "auth.impersonation.blocked"
	AuditCSRFRejected         AuditAction = "auth.csrf.rejected"
)

// AuditCategory groups audit actions for downstream filtering.
type AuditCategory string

const (
	AuditCategoryAuth          AuditCategory = "authentication"
	AuditCategoryToken         AuditCategory = "token"
	AuditCategoryImpersonation AuditCategory = "impersonation"
	AuditCategorySecurity      AuditCategory = "security"
)

// AuditEvent is one append-only row in the security audit trail. Writes are
// best-effort: a failed append is logged and never aborts the operation
// that produced it.
type AuditEvent struct {
	Action     AuditAction
	Category   AuditCategory
	UserID     *string
	IP         string
	UserAgent  string
	Metadata   map[string]any
	OccurredAt time.Time
}

// NotificationKind enumerates the outbound best-effort notifications.
type NotificationKind string

const (
	NotifyAccountLocked   NotificationKind = "account_locked"
	NotifyNewDevice       NotificationKind = "new_device"
	NotifyPasswordChanged NotificationKind = "password_changed"
	NotifyTOTPEnabled     NotificationKind = "totp_enabled"
	NotifyTOTPDisabled    NotificationKind = "totp_disabled"
)

// Notification is a fire-and-forget message for the external mail
// dispatcher. Delivery failures are logged, never propagated.
type Notification struct {
	Kind  NotificationKind
	Email string
	Data  map[string]any
}
