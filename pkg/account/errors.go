package account

import "errors"

var (
	// ErrConfig reports a missing, unreadable or malformed account file.
	ErrConfig = errors.New("account store configuration error")

	// ErrAuthFailed reports an unknown user, a disabled user, a wrong
	// password or an unprovisioned anonymous account.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrPersistence reports a failure writing the account file. The cache
	// already reflects the attempted change; Refresh reconciles it.
	ErrPersistence = errors.New("account store persistence failure")

	// ErrInvalidAccount reports an account missing its name or home directory.
	ErrInvalidAccount = errors.New("invalid account")

	// ErrUnknownAccount reports a lookup of a name the store does not hold.
	ErrUnknownAccount = errors.New("unknown account")

	// ErrStoreDisposed is returned by every Store operation after Dispose.
	ErrStoreDisposed = errors.New("account store disposed")
)
