package app

import (
	"errors"
	"fmt"
	"net/http"

	"answerdesk/api/internal/authpw"
)

// DomainError is a transport-facing error for the account and
// infrastructure failures that sit outside the workflow taxonomy.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
	cause   error
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

var accountErrors = []struct {
	cause   error
	status  int
	code    string
	message string
}{
	{authpw.ErrEmailTaken, http.StatusConflict, "EMAIL_EXISTS", "Email already registered"},
	{authpw.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password"},
	{authpw.ErrRegistrationPending, http.StatusForbidden, "REGISTRATION_PENDING", "Registration is awaiting approval"},
	{authpw.ErrRegistrationRejected, http.StatusForbidden, "REGISTRATION_REJECTED", "Registration was rejected"},
	{authpw.ErrAccountInactive, http.StatusForbidden, "ACCOUNT_INACTIVE", "Account is deactivated"},
}

// accountError translates a credential-service failure into its
// DomainError. Unknown errors pass through unchanged.
func accountError(err error) error {
	for _, known := range accountErrors {
		if errors.Is(err, known.cause) {
			return &DomainError{
				Status:  known.status,
				Code:    known.code,
				Message: known.message,
				cause:   known.cause,
			}
		}
	}
	return err
}
