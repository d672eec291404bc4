package model

import "errors"

// Common errors used across the application
var (
	// Account errors
	ErrUsernameExists     = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotLoggedIn        = errors.New("not logged in")
	ErrInvalidAccount     = errors.New("username and password are required")

	// Catalog errors
	ErrGameNotFound    = errors.New("game not found")
	ErrNotOwner        = errors.New("game is owned by another publisher")
	ErrInvalidGameID   = errors.New("invalid game id")
	ErrMissingVersion  = errors.New("game version is required")
	ErrInvalidRating   = errors.New("rating must be between 1 and 5")
	ErrCatalogNotSaved = errors.New("catalog could not be persisted")

	// Package errors
	ErrPackageNotInstalled = errors.New("game files missing")
	ErrInvalidArchive      = errors.New("invalid game archive")
	ErrInvalidManifest     = errors.New("invalid game manifest")

	// Room errors
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomFull        = errors.New("room is full")
	ErrNotHost         = errors.New("player is not the host")
	ErrAlreadyStarted  = errors.New("game already started")
	ErrStartInProgress = errors.New("game is already starting")
	ErrNoPortAvailable = errors.New("no server ports available")
	ErrSpawnFailed     = errors.New("game server failed to start")
)
