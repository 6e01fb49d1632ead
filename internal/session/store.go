// Package session stores in-progress conversation state keyed by platform
// user id. The store has external-cache semantics: last write wins, deletes
// are idempotent, and no durability across restarts is promised.
package session

import (
	"context"
	"errors"

	"calobot.app/bot/internal/model"
)

var ErrNotFound = errors.New("session not found")

type Store interface {
	// Get returns the open session for a user, or ErrNotFound.
	Get(ctx context.Context, userID string) (*model.Session, error)
	// Put overwrites any existing session for the user.
	Put(ctx context.Context, sess *model.Session) error
	// Delete removes the user's session; absent sessions are not an error.
	Delete(ctx context.Context, userID string) error
}
