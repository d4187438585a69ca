package tracker

import "errors"

var (
	ErrDuplicateTrackingID = errors.New("duplicate tracking id")
	ErrUnknownTrackingID   = errors.New("unknown tracking id")
	ErrDuplicateBranch     = errors.New("duplicate branch")
	ErrUnknownBranch       = errors.New("unknown branch")
)
