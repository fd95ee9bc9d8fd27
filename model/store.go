package model

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrTierPinned is returned by Set when a pinned tier rejects the change.
var ErrTierPinned = errors.New("tier is pinned")

// tierKey is the context key for a request-pinned tier.
type tierKey struct{}

// TierStore holds the process-wide tier selection. Reads are lock-free and
// safe while a Set is in flight; concurrent writers resolve last-write-wins.
type TierStore struct {
	current  atomic.Pointer[Tier]
	pinned   *Tier
	fallback Tier
	modelID  string
}

// StoreOption configures a TierStore.
type StoreOption func(*TierStore)

// WithPinnedTier fixes the tier regardless of Set calls, mirroring a
// deployment-level environment override.
func WithPinnedTier(t Tier) StoreOption {
	return func(s *TierStore) {
		s.pinned = &t
	}
}

// WithFallbackTier sets the tier returned before any selection is made.
func WithFallbackTier(t Tier) StoreOption {
	return func(s *TierStore) {
		s.fallback = t
	}
}

// WithModelOverride routes every tier to modelID (development cost savings).
// The flagship Opus identifier is treated as no override.
func WithModelOverride(modelID string) StoreOption {
	return func(s *TierStore) {
		s.modelID = modelID
	}
}

// NewTierStore creates a store that resolves to DefaultTier until Set.
func NewTierStore(opts ...StoreOption) *TierStore {
	s := &TierStore{fallback: DefaultTier}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current returns the active tier: pinned override, else the stored
// selection, else the fallback.
func (s *TierStore) Current() Tier {
	var t Tier
	switch {
	case s.pinned != nil:
		t = *s.pinned
	case s.current.Load() != nil:
		t = *s.current.Load()
	default:
		t = s.fallback
	}
	return t.WithModel(s.modelID)
}

// Set records a new active tier. While a tier is pinned nothing is stored;
// selecting the pinned tier is a no-op and any other tier fails with
// ErrTierPinned.
func (s *TierStore) Set(t Tier) error {
	if s.pinned != nil {
		if t.Name == s.pinned.Name {
			return nil
		}
		return fmt.Errorf("%w to %s", ErrTierPinned, s.pinned.Name)
	}
	s.current.Store(&t)
	return nil
}

// Resolve returns the tier pinned on ctx by NewContext, else Current.
// Orchestrators call this once per request and pass the value down.
func (s *TierStore) Resolve(ctx context.Context) Tier {
	if t, ok := FromContext(ctx); ok {
		return t.WithModel(s.modelID)
	}
	return s.Current()
}

// TierInfo describes a ladder rung for listing endpoints.
type TierInfo struct {
	Tier
	Active bool `json:"active"`
}

// Tiers lists the ladder with the active tier flagged.
func (s *TierStore) Tiers() []TierInfo {
	current := s.Current()
	ladder := Ladder()
	out := make([]TierInfo, 0, len(ladder))
	for _, t := range ladder {
		out = append(out, TierInfo{Tier: t.WithModel(s.modelID), Active: t.Name == current.Name})
	}
	return out
}

// NewContext returns a new context with the tier attached.
func NewContext(ctx context.Context, t Tier) context.Context {
	return context.WithValue(ctx, tierKey{}, t)
}

// FromContext retrieves a tier attached with NewContext.
func FromContext(ctx context.Context) (Tier, bool) {
	t, ok := ctx.Value(tierKey{}).(Tier)
	return t, ok
}
