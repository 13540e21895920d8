package soundcloud

import (
	"fmt"
	"strings"
	"time"
)

const (
	legacyTimestampLayout = "2006/01/02 15:04:05 -0700"
	errMessageBadTime     = "unrecognized timestamp"
)

// Account is an immutable snapshot of an upstream user profile. Accounts are
// never mutated locally; refreshed data always arrives as a new snapshot.
type Account struct {
	ID              int64  `json:"id"`
	Username        string `json:"username"`
	PermalinkURL    string `json:"permalink_url"`
	AvatarURL       string `json:"avatar_url"`
	FollowersCount  int    `json:"followers_count,omitempty"`
	FollowingsCount int    `json:"followings_count,omitempty"`
}

// TrackOwner identifies the account that published a track.
type TrackOwner struct {
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}

// Track describes a single upstream track.
type Track struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	PermalinkURL string     `json:"permalink_url"`
	ArtworkURL   string     `json:"artwork_url"`
	CreatedAt    Timestamp  `json:"created_at"`
	User         TrackOwner `json:"user"`
}

// Timestamp wraps time.Time to accept both the legacy upstream layout
// ("2013/03/13 13:13:13 +0000") and RFC 3339.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON parses the upstream timestamp representation.
func (timestamp *Timestamp) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		timestamp.Time = time.Time{}
		return nil
	}
	if parsed, err := time.Parse(legacyTimestampLayout, raw); err == nil {
		timestamp.Time = parsed
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		timestamp.Time = parsed
		return nil
	}
	return fmt.Errorf("%s: %q", errMessageBadTime, raw)
}

// MarshalJSON renders the timestamp as RFC 3339.
func (timestamp Timestamp) MarshalJSON() ([]byte, error) {
	if timestamp.Time.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + timestamp.Time.Format(time.RFC3339) + `"`), nil
}

// accountPage mirrors the paged collection envelope returned by the
// followers, followings and likes endpoints.
type accountPage struct {
	Collection []Account `json:"collection"`
	NextHref   string    `json:"next_href"`
}

type trackPage struct {
	Collection []Track `json:"collection"`
	NextHref   string  `json:"next_href"`
}
