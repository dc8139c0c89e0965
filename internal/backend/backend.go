// Package backend implements the uniform operation set over the two
// receiver families. Protocol differences stay behind the adapter
// contracts; callers pick a variant through the dispatch table.
package backend

import (
	"context"

	"github.com/alex/castmasta/internal/adapters"
	"github.com/alex/castmasta/internal/credentials"
	"github.com/alex/castmasta/internal/domain"
)

// ConnectOptions carries per-connect tuning that only some variants use.
type ConnectOptions struct {
	// PairingProtocol is the AirPlay sub-protocol whose credentials take
	// precedence at connect time. Zero value means no preference.
	PairingProtocol domain.PairingProtocol
}

// Backend is one connected receiver. Implementations are not safe for
// concurrent mutation of the same operation; the orchestrator documents
// which races it tolerates.
type Backend interface {
	Connect(ctx context.Context, target adapters.ConnectTarget, opts ConnectOptions) error
	Disconnect(ctx context.Context) error

	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	Seek(ctx context.Context, seconds float64) error

	SetVolume(ctx context.Context, level float64) error
	GetVolume(ctx context.Context) (float64, error)

	NowPlaying(ctx context.Context) (domain.NowPlaying, error)

	PowerOn(ctx context.Context) error
	PowerOff(ctx context.Context) error
	PowerState(ctx context.Context) (bool, error)

	PlayURL(ctx context.Context, mediaURL string, position float64) error
	StreamFile(ctx context.Context, path string) error
	SendKey(ctx context.Context, key domain.Key) error

	DeviceType() domain.DeviceType
}

// Factories is the variant dispatch table, keyed by device family tag.
type Factories map[domain.DeviceType]func() Backend

// Deps holds the shared collaborators the variants draw on.
type Deps struct {
	AirPlayFactory adapters.AirPlayFactory
	CastFactory    adapters.CastFactory
	Credentials    *credentials.Store
	FileServerPort int
	Logf           func(format string, args ...any)
}

// DefaultFactories builds the two-variant dispatch table.
func DefaultFactories(deps Deps) Factories {
	logf := deps.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return Factories{
		domain.DeviceTypeAirPlay: func() Backend {
			return NewAirPlayBackend(deps.AirPlayFactory, deps.Credentials, logf)
		},
		domain.DeviceTypeGoogleCast: func() Backend {
			return NewCastBackend(deps.CastFactory, deps.FileServerPort, logf)
		},
	}
}
