// internal/domain/channel/keys.go
package channel

import (
	"fmt"
	"strings"
	"time"
)

// Key suffixes of the flat key-value form used by persisted stores.
const (
	SuffixName      = "name"
	SuffixQuery     = "query"
	SuffixLastCheck = "lastcheck"
)

// Entry is one key-value pair of the flat persisted form.
type Entry struct {
	Key   string
	Value string
}

// Flatten encodes channels as "{channel}.{suffix}" entries, preserving channel order.
// Features are written in scan order so the output is deterministic.
func Flatten(channels []*Channel) []Entry {
	entries := make([]Entry, 0, len(channels)*3)
	for _, c := range channels {
		entries = append(entries,
			Entry{Key: c.Key + "." + SuffixName, Value: c.Name},
			Entry{Key: c.Key + "." + SuffixQuery, Value: c.Query},
		)
		if !c.LastCheck.IsZero() {
			entries = append(entries, Entry{Key: c.Key + "." + SuffixLastCheck, Value: c.LastCheck.Format(TimestampLayout)})
		}
		for _, f := range Features {
			if spec, ok := c.Features[f]; ok {
				entries = append(entries, Entry{Key: c.Key + "." + string(f), Value: spec})
			}
		}
	}
	return entries
}

// Unflatten decodes entries produced by Flatten. Channels are returned in the
// order their first key appears. Unknown suffixes are rejected.
func Unflatten(entries []Entry) ([]*Channel, error) {
	byKey := make(map[string]*Channel)
	var order []*Channel

	for _, e := range entries {
		idx := strings.LastIndex(e.Key, ".")
		if idx <= 0 || idx == len(e.Key)-1 {
			return nil, fmt.Errorf("malformed channel key %q", e.Key)
		}
		key, suffix := NormalizeKey(e.Key[:idx]), strings.ToLower(e.Key[idx+1:])

		c, ok := byKey[key]
		if !ok {
			c = &Channel{Key: key, Name: key, Features: make(map[Feature]string)}
			byKey[key] = c
			order = append(order, c)
		}

		switch suffix {
		case SuffixName:
			c.Name = e.Value
		case SuffixQuery:
			c.Query = e.Value
		case SuffixLastCheck:
			ts, err := time.ParseInLocation(TimestampLayout, e.Value, time.Local)
			if err != nil {
				return nil, fmt.Errorf("invalid lastcheck for channel %q: %w", key, err)
			}
			c.LastCheck = ts
		default:
			f, ok := ParseFeature(suffix)
			if !ok {
				return nil, fmt.Errorf("unknown key suffix %q for channel %q", suffix, key)
			}
			c.Features[f] = e.Value
		}
	}
	return order, nil
}
