package domain

import (
	"context"
	"time"
)

// Credentials are the NAVER session cookies sent with every upstream call.
type Credentials struct {
	NidAut string `json:"NID_AUT" yaml:"nid_aut"`
	NidSes string `json:"NID_SES" yaml:"nid_ses"`
}

func (c Credentials) Empty() bool {
	return c.NidAut == "" || c.NidSes == ""
}

// Profile identifies the account the credentials belong to.
type Profile struct {
	UserIDHash string `json:"userIdHash" yaml:"user_id_hash"`
	Nickname   string `json:"nickname" yaml:"nickname"`
}

// Session is a verified credential pair and the profile it resolved to.
type Session struct {
	Credentials Credentials `yaml:"credentials"`
	Profile     Profile     `yaml:"profile"`
	VerifiedAt  time.Time   `yaml:"verified_at"`
}

// ProfileResolver verifies credentials against the upstream and returns the
// owning profile, or an error wrapping ErrInvalidCredentials.
type ProfileResolver interface {
	ResolveProfile(ctx context.Context, creds Credentials) (Profile, error)
}

// SessionStore persists the last verified session. Load returns
// ErrSessionNotFound when nothing is stored.
type SessionStore interface {
	LoadSession(ctx context.Context) (*Session, error)
	SaveSession(ctx context.Context, session Session) error
	DeleteSession(ctx context.Context) error
}
