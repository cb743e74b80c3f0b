// ABOUTME: Client-side registration checks run before any network call
// ABOUTME: Password confirmation and terms acceptance are local preconditions

package session

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/2389/compliai/internal/client"
)

// ErrValidation is wrapped by every local precondition failure.
var ErrValidation = errors.New("validation failed")

// Registration precondition errors
var (
	ErrPasswordMismatch = fmt.Errorf("%w: passwords do not match", ErrValidation)
	ErrTermsNotAccepted = fmt.Errorf("%w: you must accept the terms and conditions", ErrValidation)
	ErrMissingField     = fmt.Errorf("%w: missing required field", ErrValidation)
	ErrInvalidEmail     = fmt.Errorf("%w: invalid email address", ErrValidation)
)

// RegisterRequest is what the sign-up form collects.
type RegisterRequest struct {
	Email           string
	FullName        string
	Department      string
	Password        string
	ConfirmPassword string
	AcceptTerms     bool
}

// Validate checks the local preconditions.
func (r RegisterRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.Email) == "":
		return fmt.Errorf("%w: email", ErrMissingField)
	case strings.TrimSpace(r.FullName) == "":
		return fmt.Errorf("%w: full name", ErrMissingField)
	case r.Password == "":
		return fmt.Errorf("%w: password", ErrMissingField)
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(r.Email)); err != nil {
		return ErrInvalidEmail
	}
	if r.Password != r.ConfirmPassword {
		return ErrPasswordMismatch
	}
	if !r.AcceptTerms {
		return ErrTermsNotAccepted
	}
	return nil
}

func (r RegisterRequest) wire() client.Registration {
	return client.Registration{
		Email:      strings.TrimSpace(r.Email),
		FullName:   strings.TrimSpace(r.FullName),
		Password:   r.Password,
		Department: strings.TrimSpace(r.Department),
	}
}
