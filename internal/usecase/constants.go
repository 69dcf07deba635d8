package usecase

import "time"

const (
	// DefaultTransactionTimeout is the maximum duration for a remote store transaction.
	DefaultTransactionTimeout = 10 * time.Second

	// IdempotencyKeyTTL is how long idempotency keys are cached
	IdempotencyKeyTTL = 24 * time.Hour

	// IdempotencyPending is the stored value of a key whose request is still running.
	IdempotencyPending = "processing"

	// DefaultPullPageSize is the number of remote changes fetched per pull page.
	DefaultPullPageSize = 500

	// DefaultSyncConcurrency bounds how many trips reconcile at once.
	DefaultSyncConcurrency = 4

	// maxPullPages stops a runaway pull loop against a misbehaving remote.
	maxPullPages = 1000
)
