package main

import "errors"

// Exit codes per spec §6: 0 ok, 1 generic failure, 2 bad config, 3 bootstrap
// conflict (init run against an already-bootstrapped instance).
const (
	exitOK             = 0
	exitGeneric        = 1
	exitConfig         = 2
	exitBootstrapExist = 3
)

// errConfig and errBootstrapExists let subcommands signal a specific exit
// code without main needing to know which command raised it.
var (
	errConfig          = errors.New("config error")
	errBootstrapExists = errors.New("instance already bootstrapped")
)

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, errBootstrapExists):
		return exitBootstrapExist
	case errors.Is(err, errConfig):
		return exitConfig
	default:
		return exitGeneric
	}
}
