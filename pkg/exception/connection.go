package exception

import "github.com/yanun0323/errors"

var (
	ErrVenueResponse    = errors.New("venue: error in response")
	ErrVenueUnknownPair = errors.New("venue: unknown pair")
)
