package models

import "errors"

var (
	ErrNoServersAvailable = errors.New("no servers available")
	ErrNoReachableServers = errors.New("no reachable servers")
	ErrMalformedResponse  = errors.New("malformed server response")
)
