package healthchecker

import "context"

type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker wraps clients that can report their own connectivity.
func PingChecker(pinger Pinger) Checker {
	return pinger.Ping
}
