package signaling

import "errors"

var (
	ErrPeerNotFound  = errors.New("peer not found")
	ErrDuplicatePeer = errors.New("peer id already in room")
	ErrConnClosed    = errors.New("connection closed")
	ErrSendTimeout   = errors.New("send timed out")
)
