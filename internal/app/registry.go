// internal/app/registry.go
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"youtrack_notification_bot/internal/domain/channel"
)

// Config-state errors. Handlers treat them as "nothing to do".
var ErrChannelNotFound = errors.New("channel not found")
var ErrChannelExists = errors.New("channel already has a query")
var ErrQueryNotSet = errors.New("no query defined for channel")

// Registry owns the channel configuration. All access goes through Update or
// View, which hold the single registry lock for the whole callback, so the
// scheduler's read/dispatch/persist cycle never interleaves with a command.
type Registry struct {
	mu       sync.Mutex
	store    channel.Store
	channels map[string]*channel.Channel
	order    []string
}

// LoadRegistry reads every channel from store.
func LoadRegistry(ctx context.Context, store channel.Store) (*Registry, error) {
	loaded, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load channels: %w", err)
	}
	r := &Registry{
		store:    store,
		channels: make(map[string]*channel.Channel, len(loaded)),
	}
	for _, c := range loaded {
		if _, dup := r.channels[c.Key]; dup {
			continue
		}
		r.channels[c.Key] = c
		r.order = append(r.order, c.Key)
	}
	return r, nil
}

// Update runs fn with exclusive access to the registry.
func (r *Registry) Update(ctx context.Context, fn func(tx *Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(&Tx{r: r, ctx: ctx})
}

// View runs fn with exclusive access; fn is expected not to mutate.
func (r *Registry) View(fn func(tx *Tx) error) error {
	return r.Update(context.Background(), fn)
}

// ChannelRef names a channel: its lookup key and its delivery name.
type ChannelRef struct {
	Key  string
	Name string
}

// Tx is the registry surface available inside Update/View. It must not be
// retained after the callback returns.
type Tx struct {
	r   *Registry
	ctx context.Context
}

func (tx *Tx) get(name string) (*channel.Channel, bool) {
	c, ok := tx.r.channels[channel.NormalizeKey(name)]
	return c, ok
}

func (tx *Tx) HasChannel(name string) bool {
	_, ok := tx.get(name)
	return ok
}

// CreateChannel registers a channel with query and an initial last-check.
func (tx *Tx) CreateChannel(name, query string, lastCheck time.Time) error {
	if strings.TrimSpace(query) == "" {
		return ErrQueryNotSet
	}
	if tx.HasChannel(name) {
		return ErrChannelExists
	}
	c := channel.New(name, query)
	c.LastCheck = lastCheck
	tx.r.channels[c.Key] = c
	tx.r.order = append(tx.r.order, c.Key)
	return nil
}

// Channel returns a copy of the named channel.
func (tx *Tx) Channel(name string) (*channel.Channel, bool) {
	c, ok := tx.get(name)
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

func (tx *Tx) Query(name string) (string, error) {
	c, ok := tx.get(name)
	if !ok {
		return "", ErrChannelNotFound
	}
	if c.Query == "" {
		return "", ErrQueryNotSet
	}
	return c.Query, nil
}

// LastCheck returns the channel's last-check time; ok is false when absent.
func (tx *Tx) LastCheck(name string) (ts time.Time, ok bool) {
	c, found := tx.get(name)
	if !found || c.LastCheck.IsZero() {
		return time.Time{}, false
	}
	return c.LastCheck, true
}

func (tx *Tx) SetLastCheck(name string, ts time.Time) error {
	c, ok := tx.get(name)
	if !ok {
		return ErrChannelNotFound
	}
	c.LastCheck = ts
	return nil
}

func (tx *Tx) FeatureSpec(name string, f channel.Feature) (string, bool) {
	c, ok := tx.get(name)
	if !ok {
		return "", false
	}
	spec, ok := c.Features[f]
	return spec, ok
}

func (tx *Tx) SetFeatureSpec(name string, f channel.Feature, spec string) error {
	c, ok := tx.get(name)
	if !ok {
		return ErrChannelNotFound
	}
	c.Features[f] = spec
	return nil
}

// DeleteFeatureSpec disables f; it reports whether the feature was enabled.
func (tx *Tx) DeleteFeatureSpec(name string, f channel.Feature) bool {
	c, ok := tx.get(name)
	if !ok {
		return false
	}
	if _, enabled := c.Features[f]; !enabled {
		return false
	}
	delete(c.Features, f)
	return true
}

// Channels lists channels in registry order.
func (tx *Tx) Channels() []ChannelRef {
	refs := make([]ChannelRef, 0, len(tx.r.order))
	for _, key := range tx.r.order {
		refs = append(refs, ChannelRef{Key: key, Name: tx.r.channels[key].Name})
	}
	return refs
}

// DeleteChannel removes the channel with its query, last-check and feature
// specs. It reports whether anything was deleted.
func (tx *Tx) DeleteChannel(name string) bool {
	key := channel.NormalizeKey(name)
	if _, ok := tx.r.channels[key]; !ok {
		return false
	}
	delete(tx.r.channels, key)
	for i, k := range tx.r.order {
		if k == key {
			tx.r.order = append(tx.r.order[:i], tx.r.order[i+1:]...)
			break
		}
	}
	return true
}

// Flush persists the current state through the store.
func (tx *Tx) Flush() error {
	channels := make([]*channel.Channel, 0, len(tx.r.order))
	for _, key := range tx.r.order {
		channels = append(channels, tx.r.channels[key].Clone())
	}
	if err := tx.r.store.Save(tx.ctx, channels); err != nil {
		return fmt.Errorf("failed to persist channels: %w", err)
	}
	return nil
}
