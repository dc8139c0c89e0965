package adapters

import (
	"context"
	"time"

	"github.com/alex/castmasta/internal/domain"
)

// Scanner discovers receivers of one protocol family.
type Scanner interface {
	Scan(ctx context.Context, timeout time.Duration) ([]domain.DiscoveredDevice, error)
}

// ConnectTarget identifies one receiver on the LAN.
type ConnectTarget struct {
	Identifier string
	Address    string
	Name       string
}

// AirPlayConn is a live connection to a push-protocol receiver.
type AirPlayConn interface {
	Close() error
	StreamFile(ctx context.Context, path string) error
	PlayURL(ctx context.Context, url string, position float64) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	Seek(ctx context.Context, seconds float64) error
	SetVolume(ctx context.Context, level float64) error
	Volume(ctx context.Context) (float64, error)
	Playing(ctx context.Context) (domain.NowPlaying, error)
	TurnOn(ctx context.Context) error
	TurnOff(ctx context.Context) error
	PowerState(ctx context.Context) (bool, error)
	PressKey(ctx context.Context, key domain.Key) error
}

// AirPlayFactory opens AirPlay connections. Credentials, when present,
// are attached before the underlying handshake.
type AirPlayFactory interface {
	Connect(ctx context.Context, target ConnectTarget, credentials map[domain.PairingProtocol]string) (AirPlayConn, error)
}

// PairingHandle is one open pairing handshake.
type PairingHandle interface {
	// DeviceProvidesPIN reports whether the receiver displays the PIN
	// itself, in which case the caller only relays it.
	DeviceProvidesPIN() bool
	SetPIN(pin string)
	Finish(ctx context.Context) error
	HasPaired() bool
	Credentials() string
	Close(ctx context.Context) error
}

// AirPlayPairer opens pairing handshakes with push-protocol receivers.
type AirPlayPairer interface {
	BeginPairing(ctx context.Context, target ConnectTarget, protocol domain.PairingProtocol) (PairingHandle, error)
}

// CastConn is a live connection to a pull-protocol receiver.
type CastConn interface {
	Load(ctx context.Context, mediaURL, contentType string) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	Seek(ctx context.Context, seconds float64) error
	SetVolume(ctx context.Context, level float64) error
	Volume(ctx context.Context) (float64, error)
	Status(ctx context.Context) (domain.NowPlaying, error)
	QuitApp(ctx context.Context) error
	Close() error
}

// CastFactory opens CastConn instances.
type CastFactory interface {
	Connect(ctx context.Context, address string, port int) (CastConn, error)
}
