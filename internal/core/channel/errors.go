package channel

import "errors"

// Hub errors
var (
	ErrHubClosed      = errors.New("hub is closed")
	ErrTooManyClients = errors.New("subscriber limit reached")
)
