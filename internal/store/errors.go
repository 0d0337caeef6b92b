// ABOUTME: Sentinel errors the HTTP layer maps to the client-facing taxonomy.
// ABOUTME: Anything else escaping the store is an infrastructure failure (500).
package store

import "errors"

var (
	// ErrAlreadyMember — the invited email already resolves to a member of the org.
	ErrAlreadyMember = errors.New("email already belongs to a member of this organization")

	// ErrDuplicateInvitation — a pending, unexpired invitation for this
	// (email, org) already exists.
	ErrDuplicateInvitation = errors.New("a pending invitation for this email already exists")

	// ErrInvitationNotPending — accept/reject attempted on an invitation that
	// is already accepted, rejected, or expired.
	ErrInvitationNotPending = errors.New("invitation is no longer pending")

	// ErrLastAdmin — demoting or removing the organization's only admin.
	ErrLastAdmin = errors.New("organization must keep at least one admin")
)
