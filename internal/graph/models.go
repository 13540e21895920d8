package graph

import (
	"errors"
	"fmt"

	"github.com/ham-and/social-graph-2802/internal/soundcloud"
)

// Account is an immutable snapshot of an upstream profile.
type Account = soundcloud.Account

// Track is an upstream track snapshot.
type Track = soundcloud.Track

// RelationshipSnapshot holds the follower and following collections fetched
// for one subject account. Followings may be partial; FollowingsOffset tracks
// the accumulated length and TotalFollowings the upstream-reported total.
type RelationshipSnapshot struct {
	Subject          Account
	Followers        []Account
	Followings       []Account
	FollowingsOffset int
	TotalFollowings  int
}

// FollowingsComplete reports whether every followed account has been loaded.
func (snapshot RelationshipSnapshot) FollowingsComplete() bool {
	return len(snapshot.Followings) >= snapshot.TotalFollowings
}

// MutualitySplit partitions the follower snapshot against the followings set.
// The partition is total and disjoint over the follower snapshot it was
// computed from.
type MutualitySplit struct {
	Mutual    []Account
	NonMutual []Account
}

// SuggestedAccount is a second-degree account together with the mutual
// connections through which it was discovered.
type SuggestedAccount struct {
	Account
	MutualCount       int       `json:"mutual_count"`
	MutualConnections []Account `json:"mutual_connections"`
}

// LikedTrack is a deduplicated track with the accumulated list of mutual
// follows that liked it. LikedBy is append-only within one aggregation pass.
type LikedTrack struct {
	Track
	LikedBy []Account `json:"liked_by"`
}

// SortPolicy selects the final ordering of an aggregated liked-track list.
type SortPolicy string

const (
	// SortNewest orders tracks by descending creation time.
	SortNewest SortPolicy = "newest"
	// SortOldest orders tracks by ascending creation time.
	SortOldest SortPolicy = "oldest"
	// SortPopular orders tracks by descending attribution count. Default.
	SortPopular SortPolicy = "popular"
)

const errMessageUnknownSortPolicy = "unknown sort policy"

// ErrUnknownSortPolicy indicates an unrecognized sort policy value.
var ErrUnknownSortPolicy = errors.New(errMessageUnknownSortPolicy)

// ParseSortPolicy validates a raw sort policy value, defaulting to popular
// when the input is empty.
func ParseSortPolicy(raw string) (SortPolicy, error) {
	switch SortPolicy(raw) {
	case SortNewest:
		return SortNewest, nil
	case SortOldest:
		return SortOldest, nil
	case SortPopular, SortPolicy(""):
		return SortPopular, nil
	default:
		return SortPopular, fmt.Errorf("%w: %q", ErrUnknownSortPolicy, raw)
	}
}
