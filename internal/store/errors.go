package store

import "errors"

var (
	// ErrRecordNotFound wraps GORM's not found error for callers that do not
	// want to import gorm.
	ErrRecordNotFound = errors.New("record not found")

	// ErrCodeAlreadyConsumed is returned by ConsumeAuthorizationCode when the
	// conditional update matched zero rows: a concurrent request already
	// claimed the code.
	ErrCodeAlreadyConsumed = errors.New("authorization code already consumed")

	// ErrTokenPairNotActive is returned by the rotation claim when the pair
	// was already rotated away or deleted.
	ErrTokenPairNotActive = errors.New("token pair is not active")
)
