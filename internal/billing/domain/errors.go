package domain

import "errors"

var (
	// ErrCallbackExists is the ledger's answer to registering a URL it
	// already has. Not a failure; the registration goal is met.
	ErrCallbackExists = errors.New("callback_exists")

	// ErrLedgerUnavailable covers transport failures to the ledger.
	ErrLedgerUnavailable = errors.New("ledger_unavailable")
)
