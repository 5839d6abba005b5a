package errors

import "errors"

// Remote errors.
var (
	ErrRemote       = errors.New("remote request failed")
	ErrTransport    = errors.New("remote transport failure")
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrNoSession    = errors.New("no session available")
)

// Local filesystem errors.
var (
	ErrDirectoryUnreadable = errors.New("directory unreadable")
	ErrLocalIO             = errors.New("local I/O failure")
)
