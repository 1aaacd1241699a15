package compute

import "errors"

var (
	ErrNoFixture       = errors.New("no compute fixture")
	ErrInvalidStatKey  = errors.New("invalid stat key for fixture lookup")
	ErrUnreadableInput = errors.New("unreadable compute fixture")
)
