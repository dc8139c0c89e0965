package backend

import (
	"context"
	"net"
	"strconv"

	"github.com/alex/castmasta/internal/adapters"
	"github.com/alex/castmasta/internal/domain"
	"github.com/alex/castmasta/internal/fileserver"
)

// defaultCastPort is the Cast receiver control port.
const defaultCastPort = 8009

// fileServerFor is a seam for tests.
var fileServerFor = func(port int, logf func(format string, args ...any)) castFileServer {
	return fileserver.NewServer(port, logf)
}

type castFileServer interface {
	Serve(deviceAddress, path string) (string, error)
	Shutdown()
}

// CastBackend drives a pull-protocol receiver: the device fetches media
// from a URL, so local files go through the file server first. Pairing
// and remote keys are not part of this family.
type CastBackend struct {
	factory adapters.CastFactory
	files   castFileServer
	logf    func(format string, args ...any)

	conn    adapters.CastConn
	address string
}

func NewCastBackend(factory adapters.CastFactory, fileServerPort int, logf func(format string, args ...any)) *CastBackend {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &CastBackend{
		factory: factory,
		files:   fileServerFor(fileServerPort, logf),
		logf:    logf,
	}
}

func (b *CastBackend) DeviceType() domain.DeviceType { return domain.DeviceTypeGoogleCast }

func (b *CastBackend) Connect(ctx context.Context, target adapters.ConnectTarget, _ ConnectOptions) error {
	if b.factory == nil {
		return domain.Internal("Google Cast adapter is not configured")
	}

	address, port := splitCastAddress(target.Address)
	conn, err := b.factory.Connect(ctx, address, port)
	if err != nil {
		return err
	}
	b.conn = conn
	b.address = address
	b.logf("connected to Google Cast device: %s", target.Name)
	return nil
}

func (b *CastBackend) Disconnect(_ context.Context) error {
	b.files.Shutdown()
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}

func (b *CastBackend) ensureConn() (adapters.CastConn, error) {
	if b.conn == nil {
		return nil, domain.Internal("Google Cast backend has no live connection")
	}
	return b.conn, nil
}

// StreamFile exposes the file over local HTTP and instructs the device
// to pull it.
func (b *CastBackend) StreamFile(ctx context.Context, path string) error {
	conn, err := b.ensureConn()
	if err != nil {
		return err
	}

	mediaURL, err := b.files.Serve(b.address, path)
	if err != nil {
		return err
	}
	return conn.Load(ctx, mediaURL, fileserver.ContentTypeFor(path))
}

func (b *CastBackend) PlayURL(ctx context.Context, mediaURL string, _ float64) error {
	conn, err := b.ensureConn()
	if err != nil {
		return err
	}
	return conn.Load(ctx, mediaURL, "video/mp4")
}

func (b *CastBackend) Play(ctx context.Context) error {
	conn, err := b.ensureConn()
	if err != nil {
		return err
	}
	return conn.Play(ctx)
}

func (b *CastBackend) Pause(ctx context.Context) error {
	conn, err := b.ensureConn()
	if err != nil {
		return err
	}
	return conn.Pause(ctx)
}

// Stop halts receiver playback and tears down any served-file session.
func (b *CastBackend) Stop(ctx context.Context) error {
	conn, err := b.ensureConn()
	if err != nil {
		return err
	}
	stopErr := conn.Stop(ctx)
	b.files.Shutdown()
	return stopErr
}

func (b *CastBackend) Seek(ctx context.Context, seconds float64) error {
	conn, err := b.ensureConn()
	if err != nil {
		return err
	}
	return conn.Seek(ctx, seconds)
}

func (b *CastBackend) SetVolume(ctx context.Context, level float64) error {
	conn, err := b.ensureConn()
	if err != nil {
		return err
	}
	return conn.SetVolume(ctx, level)
}

func (b *CastBackend) GetVolume(ctx context.Context) (float64, error) {
	conn, err := b.ensureConn()
	if err != nil {
		return 0, err
	}
	return conn.Volume(ctx)
}

func (b *CastBackend) NowPlaying(ctx context.Context) (domain.NowPlaying, error) {
	conn, err := b.ensureConn()
	if err != nil {
		return domain.NowPlaying{}, err
	}
	return conn.Status(ctx)
}

// PowerOn is a no-op: a reachable Cast device is already on.
func (b *CastBackend) PowerOn(_ context.Context) error { return nil }

// PowerOff stops whatever the receiver is running.
func (b *CastBackend) PowerOff(ctx context.Context) error {
	conn, err := b.ensureConn()
	if err != nil {
		return err
	}
	return conn.QuitApp(ctx)
}

func (b *CastBackend) PowerState(ctx context.Context) (bool, error) {
	if b.conn == nil {
		return false, nil
	}
	if _, err := b.conn.Status(ctx); err != nil {
		return false, nil
	}
	return true, nil
}

func (b *CastBackend) SendKey(_ context.Context, _ domain.Key) error {
	return domain.UnsupportedOperation("send_key is not supported on Google Cast devices")
}

func splitCastAddress(address string) (string, int) {
	host, portRaw, err := net.SplitHostPort(address)
	if err != nil {
		return address, defaultCastPort
	}
	port, err := strconv.Atoi(portRaw)
	if err != nil || port <= 0 {
		return host, defaultCastPort
	}
	return host, port
}

var _ Backend = (*CastBackend)(nil)
