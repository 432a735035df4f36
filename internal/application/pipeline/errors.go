package pipeline

import "errors"

var (
	ErrPatchRequired     = errors.New("patch required")
	ErrIDAndHashRequired = errors.New("id and hash required")
	ErrHashMismatch      = errors.New("hash mismatch")
	ErrMessageRequired   = errors.New("message required")
	ErrBusy              = errors.New("another apply/commit/push is in progress")
)
