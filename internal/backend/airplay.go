package backend

import (
	"context"

	"github.com/alex/castmasta/internal/adapters"
	"github.com/alex/castmasta/internal/credentials"
	"github.com/alex/castmasta/internal/domain"
)

// AirPlayBackend drives a push-protocol receiver: media bytes are sent
// to the device directly and the remote key set is available.
type AirPlayBackend struct {
	factory adapters.AirPlayFactory
	creds   *credentials.Store
	logf    func(format string, args ...any)

	conn adapters.AirPlayConn
	name string
}

func NewAirPlayBackend(factory adapters.AirPlayFactory, creds *credentials.Store, logf func(format string, args ...any)) *AirPlayBackend {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &AirPlayBackend{factory: factory, creds: creds, logf: logf}
}

func (b *AirPlayBackend) DeviceType() domain.DeviceType { return domain.DeviceTypeAirPlay }

// Connect attaches any stored credentials for the identifier before the
// underlying handshake runs.
func (b *AirPlayBackend) Connect(ctx context.Context, target adapters.ConnectTarget, _ ConnectOptions) error {
	if b.factory == nil {
		return domain.Internal("AirPlay adapter is not configured")
	}

	attached := map[domain.PairingProtocol]string{}
	if b.creds != nil {
		for _, protocol := range []domain.PairingProtocol{
			domain.ProtocolAirPlay,
			domain.ProtocolRAOP,
			domain.ProtocolCompanion,
		} {
			if blob, ok := b.creds.Get(target.Identifier, protocol); ok {
				attached[protocol] = blob
				b.logf("loaded %s credentials for %s", protocol, target.Name)
			}
		}
	}

	conn, err := b.factory.Connect(ctx, target, attached)
	if err != nil {
		return err
	}
	b.conn = conn
	b.name = target.Name
	b.logf("connected to AirPlay device: %s", target.Name)
	return nil
}

func (b *AirPlayBackend) Disconnect(_ context.Context) error {
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}

func (b *AirPlayBackend) ensureConn() (adapters.AirPlayConn, error) {
	if b.conn == nil {
		return nil, domain.Internal("AirPlay backend has no live connection")
	}
	return b.conn, nil
}

func (b *AirPlayBackend) StreamFile(ctx context.Context, path string) error {
	conn, err := b.ensureConn()
	if err != nil {
		return err
	}
	return conn.StreamFile(ctx, path)
}

func (b *AirPlayBackend) PlayURL(ctx context.Context, mediaURL string, position float64) error {
	conn, err := b.ensureConn()
	if err != nil {
		return err
	}
	return conn.PlayURL(ctx, mediaURL, position)
}

func (b *AirPlayBackend) Play(ctx context.Context) error {
	conn, err := b.ensureConn()
	if err != nil {
		return err
	}
	return conn.Play(ctx)
}

func (b *AirPlayBackend) Pause(ctx context.Context) error {
	conn, err := b.ensureConn()
	if err != nil {
		return err
	}
	return conn.Pause(ctx)
}

func (b *AirPlayBackend) Stop(ctx context.Context) error {
	conn, err := b.ensureConn()
	if err != nil {
		return err
	}
	return conn.Stop(ctx)
}

func (b *AirPlayBackend) Seek(ctx context.Context, seconds float64) error {
	conn, err := b.ensureConn()
	if err != nil {
		return err
	}
	return conn.Seek(ctx, seconds)
}

func (b *AirPlayBackend) SetVolume(ctx context.Context, level float64) error {
	conn, err := b.ensureConn()
	if err != nil {
		return err
	}
	return conn.SetVolume(ctx, level)
}

func (b *AirPlayBackend) GetVolume(ctx context.Context) (float64, error) {
	conn, err := b.ensureConn()
	if err != nil {
		return 0, err
	}
	return conn.Volume(ctx)
}

func (b *AirPlayBackend) NowPlaying(ctx context.Context) (domain.NowPlaying, error) {
	conn, err := b.ensureConn()
	if err != nil {
		return domain.NowPlaying{}, err
	}
	return conn.Playing(ctx)
}

// PowerOn is best effort: some receivers reject the command while still
// being usable, so failures are logged and dropped.
func (b *AirPlayBackend) PowerOn(ctx context.Context) error {
	conn, err := b.ensureConn()
	if err != nil {
		return err
	}
	if err := conn.TurnOn(ctx); err != nil {
		b.logf("power_on not available for %s: %v", b.name, err)
	}
	return nil
}

func (b *AirPlayBackend) PowerOff(ctx context.Context) error {
	conn, err := b.ensureConn()
	if err != nil {
		return err
	}
	return conn.TurnOff(ctx)
}

func (b *AirPlayBackend) PowerState(ctx context.Context) (bool, error) {
	conn, err := b.ensureConn()
	if err != nil {
		return false, err
	}
	return conn.PowerState(ctx)
}

func (b *AirPlayBackend) SendKey(ctx context.Context, key domain.Key) error {
	conn, err := b.ensureConn()
	if err != nil {
		return err
	}
	if !domain.ValidKey(key) {
		return domain.InvalidArgument("unknown key: %s", key)
	}
	return conn.PressKey(ctx, key)
}

var _ Backend = (*AirPlayBackend)(nil)
