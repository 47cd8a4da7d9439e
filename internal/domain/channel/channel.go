// internal/domain/channel/channel.go
package channel

import (
	"strings"
	"time"
)

// Feature is a capability that can be enabled per channel.
type Feature string

const (
	FeatureTracking Feature = "tracking"
	FeatureDigest   Feature = "digest"
	FeatureStats    Feature = "stats"
)

// Features lists every feature in the order the scheduler scans them.
var Features = []Feature{FeatureTracking, FeatureDigest, FeatureStats}

// ParseFeature returns the feature named by s, if any.
func ParseFeature(s string) (Feature, bool) {
	for _, f := range Features {
		if string(f) == strings.ToLower(s) {
			return f, true
		}
	}
	return "", false
}

// TimestampLayout is the tracker's absolute date-time syntax, also used to persist LastCheck.
const TimestampLayout = "2006-01-02T15:04:05"

// Channel is a chat channel bound to a tracker query.
type Channel struct {
	Key       string             // lowercased identifier
	Name      string             // delivery identifier, original case
	Query     string             // tracker query
	LastCheck time.Time          // zero when never checked
	Features  map[Feature]string // raw frequency spec per enabled feature
}

// NormalizeKey lowercases a channel name for lookups.
func NormalizeKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// New creates a channel for name with the given query.
func New(name, query string) *Channel {
	return &Channel{
		Key:      NormalizeKey(name),
		Name:     strings.TrimSpace(name),
		Query:    query,
		Features: make(map[Feature]string),
	}
}

// Clone returns a deep copy of c.
func (c *Channel) Clone() *Channel {
	out := *c
	out.Features = make(map[Feature]string, len(c.Features))
	for f, spec := range c.Features {
		out.Features[f] = spec
	}
	return &out
}
