package account

import "fmt"

// Kind classifies an account failure. Every kind except KindInternal is a
// business-rule failure reported to the client with its Message.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindInvalidCredentials
	KindEmailNotFound
	KindTokenExpired
	KindTokenInvalid
	KindUserNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindEmailNotFound:
		return "email_not_found"
	case KindTokenExpired:
		return "token_expired"
	case KindTokenInvalid:
		return "token_invalid"
	case KindUserNotFound:
		return "user_not_found"
	default:
		return "internal"
	}
}

// Client-facing messages.
const (
	MsgRegisterFieldsRequired = "Username, email, and password are required"
	MsgUserExists             = "Username or email already exists"
	MsgPasswordTooLong        = "Password must be at most 72 bytes"
	MsgLoginFieldsRequired    = "Username and password are required"
	MsgInvalidCredentials     = "Invalid username or password"
	MsgEmailRequired          = "Email is required"
	MsgEmailNotFound          = "Email not found"
	MsgNewPasswordRequired    = "New password is required"
	MsgTokenExpired           = "Token has expired. Please request a new password reset link."
	MsgTokenInvalid           = "Invalid token. Please check the reset link."
	MsgInvalidOrExpiredToken  = "Invalid or expired token"

	MsgRegisterFailed = "Error registering user"
	MsgLoginFailed    = "Error logging in"
	MsgForgotFailed   = "Error sending email"
	MsgResetFailed    = "Error resetting password"
)

// Error is returned by every Service operation.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Details is the underlying cause reported alongside internal failures.
func (e *Error) Details() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}
