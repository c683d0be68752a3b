package breakout

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JoinCredential is the opaque token a client presents to the video transport
// to enter a room. The coordinator never inspects media streams; it only
// relays the handle and token.
type JoinCredential struct {
	RoomHandle string    `json:"room_handle"`
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// VideoProvider is the port to the external video transport.
type VideoProvider interface {
	// CreateRoom provisions a transport room and returns its opaque reference.
	CreateRoom(ctx context.Context, sessionID uuid.UUID, name string) (string, error)
	// IssueJoinCredential mints a per-user credential for an existing room.
	IssueJoinCredential(ctx context.Context, externalRef string, userID uuid.UUID) (*JoinCredential, error)
	// CloseRoom tears the transport room down.
	CloseRoom(ctx context.Context, externalRef string) error
}

// StaticVideoProvider issues locally generated references and tokens. It
// stands in for a real transport in development and tests.
type StaticVideoProvider struct {
	TokenTTL time.Duration
}

func NewStaticVideoProvider() *StaticVideoProvider {
	return &StaticVideoProvider{TokenTTL: time.Hour}
}

func (p *StaticVideoProvider) CreateRoom(ctx context.Context, sessionID uuid.UUID, name string) (string, error) {
	return "room-" + uuid.NewString(), nil
}

func (p *StaticVideoProvider) IssueJoinCredential(ctx context.Context, externalRef string, userID uuid.UUID) (*JoinCredential, error) {
	return &JoinCredential{
		RoomHandle: externalRef,
		Token:      uuid.NewString(),
		ExpiresAt:  time.Now().Add(p.TokenTTL),
	}, nil
}

func (p *StaticVideoProvider) CloseRoom(ctx context.Context, externalRef string) error {
	return nil
}
