package services

import "errors"

// Ошибки домена. Оборачиваются через fmt.Errorf("...: %w", err), проверяются через errors.Is
var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrSelfNotification    = errors.New("recipient and actor are the same user")
)
