package util

import "errors"

var (
	ErrUserNotFound          = errors.New("user not found")
	ErrEmailRegistered       = errors.New("email already registered")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrPermissionDenied      = errors.New("permission denied")
	ErrInvalidXPAmount       = errors.New("xp amount is out of range")
	ErrInvalidActivityType   = errors.New("unknown activity type")
	ErrInvalidScore          = errors.New("score must be between 0 and 100")
	ErrInvalidTimeRange      = errors.New("time range must be one of all, week, month")
	ErrInvalidContentID      = errors.New("subject, module and item ids are required")
	ErrAttemptConflict       = errors.New("could not allocate quiz attempt number")
	ErrFriendSelf            = errors.New("cannot add yourself as a friend")
	ErrAlreadyFriends        = errors.New("already friends")
	ErrFriendRequestNotFound = errors.New("friend request not found")
	ErrFriendRequestHandled  = errors.New("friend request already handled")
	ErrInvalidFileType       = errors.New("invalid file type")
	ErrFileTooLarge          = errors.New("file too large")
)
