package domain

import (
	"context"
	"time"
)

// User is the public profile of a follower as the follower API reports it.
type User struct {
	UserIDHash      string  `json:"userIdHash"`
	Nickname        string  `json:"nickname"`
	ProfileImageURL *string `json:"profileImageUrl"`
}

// Follower is one entry of the follower list. FollowingSince is passed
// through in whatever format the upstream uses.
type Follower struct {
	User           User   `json:"user"`
	FollowingSince string `json:"followingSince"`
}

// Snapshot is one fetched follower page plus the instant it was fetched.
// It is replaced wholesale and never mutated after construction.
type Snapshot struct {
	Followers []Follower
	FetchedAt time.Time
}

// Len returns the number of followers, treating a nil snapshot as empty.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Followers)
}

// FollowerPage is the payload of GET /followers.
type FollowerPage struct {
	Page int        `json:"page"`
	Size int        `json:"size"`
	Data []Follower `json:"data"`
}

// FollowerSource fetches the first page of followers of the channel
// identified by channelHash.
type FollowerSource interface {
	FetchFollowers(ctx context.Context, creds Credentials, channelHash string) ([]Follower, error)
}

// TestSource names the surface a synthetic follower was requested from.
type TestSource string

const (
	TestSourceHTTP      TestSource = "http"
	TestSourceWebSocket TestSource = "websocket"
)

// DefaultProfileImage is the avatar given to test followers requested over
// a WebSocket. Overlays serve it as a static asset.
const DefaultProfileImage = "/default_profile.png"
