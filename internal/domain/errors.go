package domain

import "errors"

var (
	// ErrNotAuthenticated means no verified credentials are loaded. Polling
	// treats it as idle, not as a failure.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrInvalidCredentials means the upstream rejected the session cookies.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrPoolFull         = errors.New("connection pool is full")
	ErrMonitoringHalted = errors.New("follower monitoring halted")
	ErrSessionNotFound  = errors.New("session not found")
	ErrInvalidSettings  = errors.New("invalid settings")
)
