package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidID         = errors.New("invalid id")
	ErrDuplicateIdentity = errors.New("username or email already registered")

	ErrUserNotFound        = fmt.Errorf("user %w", ErrNotFound)
	ErrGroupNotFound       = fmt.Errorf("group %w", ErrNotFound)
	ErrChannelNotFound     = fmt.Errorf("channel %w", ErrNotFound)
	ErrAdminNotFound       = fmt.Errorf("founding admin %w", ErrNotFound)
	ErrGroupOrUserNotFound = fmt.Errorf("group or user %w", ErrNotFound)

	ErrAlreadyMember    = errors.New("already a member")
	ErrAlreadyRequested = errors.New("join already requested")
	ErrAlreadyAdmin     = errors.New("already an admin")
	ErrAlreadyHasRole   = errors.New("role already granted")
	ErrAlreadyBanned    = errors.New("already banned")

	ErrNotMember     = errors.New("not a member")
	ErrNoSuchRequest = errors.New("no such join request")

	ErrCrossEntityViolation = errors.New("cross-entity violation")
	ErrNotGroupMember       = fmt.Errorf("%w: not a member of the owning group", ErrCrossEntityViolation)

	ErrBanned      = errors.New("banned from channel")
	ErrForbidden   = errors.New("forbidden")
	ErrUnvalidated = errors.New("account not validated")
	ErrEmptyName   = errors.New("name is required")
	ErrEmptyBody   = errors.New("message content is required")
)

var taxonomy = []error{
	ErrNotFound,
	ErrInvalidID,
	ErrDuplicateIdentity,
	ErrAlreadyMember,
	ErrAlreadyRequested,
	ErrAlreadyAdmin,
	ErrAlreadyHasRole,
	ErrAlreadyBanned,
	ErrNotMember,
	ErrNoSuchRequest,
	ErrCrossEntityViolation,
	ErrBanned,
	ErrForbidden,
	ErrUnvalidated,
	ErrEmptyName,
	ErrEmptyBody,
}

// IsTaxonomy reports whether err is an expected, caller-facing failure
// rather than a storage or programming error.
func IsTaxonomy(err error) bool {
	for _, target := range taxonomy {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
