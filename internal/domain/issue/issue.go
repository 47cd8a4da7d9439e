// internal/domain/issue/issue.go
package issue

import "time"

// Issue is a tracker issue as returned by the issues endpoint.
// Only the fields the bot renders are decoded.
type Issue struct {
	ID         string   `json:"id"`
	IDReadable string   `json:"idReadable"`
	Created    int64    `json:"created"` // epoch millis
	Summary    string   `json:"summary"`
	Resolved   *int64   `json:"resolved,omitempty"` // epoch millis, nil while unresolved
	Reporter   Reporter `json:"reporter"`
	Tags       []Tag    `json:"tags"`
}

type Reporter struct {
	Email string `json:"email"`
}

type Tag struct {
	Name string `json:"name"`
}

// CreatedAt returns the creation time in local time.
func (i Issue) CreatedAt() time.Time {
	return time.UnixMilli(i.Created).Local()
}
