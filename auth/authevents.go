package auth

const (
	LoginEvent  = "auth.login"
	LogoutEvent = "auth.logout"
)

// AuthEvent is published on the event bus when a login or logout occurs.
type AuthEvent struct {
	Identity Identity
}
