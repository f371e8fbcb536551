package follower

import (
	"fmt"
	"time"

	"github.com/pscheid92/fazzk/internal/domain"
)

func follower(hash string) domain.Follower {
	return domain.Follower{
		User:           domain.User{UserIDHash: hash, Nickname: "nick-" + hash},
		FollowingSince: "2026-01-01 00:00:00",
	}
}

func followers(hashes ...string) []domain.Follower {
	out := make([]domain.Follower, len(hashes))
	for i, h := range hashes {
		out[i] = follower(h)
	}
	return out
}

func snapshotAt(at time.Time, hashes ...string) *domain.Snapshot {
	return &domain.Snapshot{Followers: followers(hashes...), FetchedAt: at}
}

func hashesOf(fs []domain.Follower) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.User.UserIDHash
	}
	return out
}

func numbered(prefix string, n int) []string {
	out := make([]string, n)
	for i := range n {
		out[i] = fmt.Sprintf("%s-%03d", prefix, i)
	}
	return out
}
