package muc

import "errors"

// ErrTimeout indicates the remote service did not answer in time. Callers
// may retry a bounded number of times.
var ErrTimeout = errors.New("muc: request timed out")

// ErrRejected indicates the remote service refused the request (permission
// denied, bad request). Retrying will not help.
var ErrRejected = errors.New("muc: request rejected")

// IsRetryable reports whether err is worth retrying. Only timeouts qualify;
// rejections and everything else are terminal for the sub-action.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout)
}
