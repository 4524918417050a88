package leads

import "errors"

var (
	// ErrInvalidName is returned when the name is invalid
	ErrInvalidName = errors.New("name is required")

	// ErrMissingEmail is returned when a lead is stored without an email
	ErrMissingEmail = errors.New("email is required")

	// ErrLeadNotFound is returned when a lead is not found
	ErrLeadNotFound = errors.New("lead not found")

	// ErrInvalidStatus is returned for an unknown lifecycle status
	ErrInvalidStatus = errors.New("invalid lead status")

	// ErrAlreadySubscribed is returned when a newsletter email is already stored
	ErrAlreadySubscribed = errors.New("email already subscribed")

	// ErrInvalidEmail is returned when a subscription email is malformed
	ErrInvalidEmail = errors.New("invalid email")
)
