// Package userstore loads a returning user's farm. No backing store exists
// yet, so every user is new.
package userstore

import (
	"context"

	"cyberfarm.ai/internal/sim/farm"
)

// Store looks up saved farms by user id.
type Store interface {
	Load(ctx context.Context, userID string) (*farm.Snapshot, bool, error)
}

// Stub never finds a saved farm.
type Stub struct{}

func (Stub) Load(ctx context.Context, userID string) (*farm.Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	return nil, false, nil
}
