package trip

import "errors"

// Orchestrator errors.
var (
	ErrNoPendingRecovery     = errors.New("no recovery decision pending")
	ErrUnknownRecoveryAction = errors.New("unknown recovery action")
)
