//go:build !zmq

package transport

// NewZMQReplySocket returns ErrZMQUnavailable.
func NewZMQReplySocket(endpoint string) (ReplySocket, error) {
	return nil, ErrZMQUnavailable
}

// NewZMQSubscriberSocket returns ErrZMQUnavailable.
func NewZMQSubscriberSocket(endpoint string) (SubscriberSocket, error) {
	return nil, ErrZMQUnavailable
}
