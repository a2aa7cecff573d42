// Package services implements the mod-mail core: the thread lifecycle, the
// message relay in both directions, blocking and snippets.
//
// This file centralizes service-level error values so that callers (the bot
// command layer, the HTTP handlers) can branch on them with errors.Is and
// turn them into staff-facing replies or HTTP statuses.
package services

import "errors"

// Thread errors.
var (
	// ErrThreadAlreadyOpen is returned when creating a thread for a user who
	// already has an OPEN one. It is a conflict, never silently merged.
	ErrThreadAlreadyOpen = errors.New("user already has an open thread")

	// ErrThreadNotFound indicates that the requested thread does not exist.
	ErrThreadNotFound = errors.New("thread not found")

	// ErrInvalidTransition is returned when a status change is not allowed
	// from the thread's current status (e.g. suspending a CLOSED thread).
	ErrInvalidTransition = errors.New("invalid thread status transition")
)

// Relay errors.
var (
	// ErrEmptyReply is returned for a reply with neither text nor attachments.
	ErrEmptyReply = errors.New("reply is empty")

	// ErrMessageNotFound indicates that no relayed reply has the given number.
	ErrMessageNotFound = errors.New("message not found")

	// ErrNotAuthor is returned when staff edit or delete someone else's reply.
	ErrNotAuthor = errors.New("only the author can change this reply")

	// ErrTooLong is returned when an edited reply no longer fits in one message.
	ErrTooLong = errors.New("message too long")
)

// Snippet errors.
var (
	// ErrSnippetExists is returned when adding a trigger that is taken.
	ErrSnippetExists = errors.New("snippet already exists")

	// ErrSnippetNotFound indicates that the trigger is unknown.
	ErrSnippetNotFound = errors.New("snippet not found")

	// ErrInvalidTrigger is returned for empty triggers or ones containing
	// whitespace.
	ErrInvalidTrigger = errors.New("invalid snippet trigger")
)
