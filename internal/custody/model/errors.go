package model

import "errors"

// Sentinel errors shared by every layer. Callers wrap them with context via
// fmt.Errorf("%w: ...") and match them with errors.Is.
var (
	// ErrUnauthorized is returned when the caller holds no permission to act.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when an authorized caller lacks the specific
	// right for the operation, e.g. removing an item it did not create.
	ErrForbidden = errors.New("forbidden")
	// ErrPermissionDenied is returned for registry management by a non-admin.
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrDuplicateItem    = errors.New("duplicate item")
	ErrInvalidArgument  = errors.New("invalid argument")
	// ErrInvalidTransition is returned when the state machine rejects a move.
	ErrInvalidTransition = errors.New("invalid transition")

	ErrAdminAlreadySet = errors.New("admin already initialized")
	ErrAdminNotSet     = errors.New("admin not initialized")
)
