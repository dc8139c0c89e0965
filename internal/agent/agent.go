// Package agent is the orchestration layer over the receiver
// backends: it owns the connected-device map, validates every call
// before delegating, and runs concurrent two-family discovery.
package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/alex/castmasta/internal/adapters"
	"github.com/alex/castmasta/internal/backend"
	"github.com/alex/castmasta/internal/credentials"
	"github.com/alex/castmasta/internal/discovery"
	"github.com/alex/castmasta/internal/domain"
	"github.com/alex/castmasta/internal/pairing"
	"github.com/alex/castmasta/internal/pipeline"
)

const (
	defaultScanTimeout    = 10 * time.Second
	defaultFileServerPort = 8089
)

// Config carries process-level settings, normally read from CASTMASTA_*
// env vars by ConfigFromEnv.
type Config struct {
	StoragePath    string
	FileServerPort int
	PiperBin       string
	FFmpegBin      string
	VoiceDataDir   string
}

func ConfigFromEnv() Config {
	cfg := Config{
		StoragePath:    os.Getenv("CASTMASTA_STORAGE_PATH"),
		FileServerPort: defaultFileServerPort,
		PiperBin:       os.Getenv("CASTMASTA_PIPER_BIN"),
		FFmpegBin:      os.Getenv("CASTMASTA_FFMPEG_BIN"),
		VoiceDataDir:   os.Getenv("CASTMASTA_VOICE_DATA_DIR"),
	}
	if raw := os.Getenv("CASTMASTA_FILE_SERVER_PORT"); raw != "" {
		if port, err := strconv.Atoi(raw); err == nil && port >= 0 {
			cfg.FileServerPort = port
		}
	}
	if cfg.VoiceDataDir == "" {
		cfg.VoiceDataDir = defaultVoiceDataDir()
	}
	return cfg
}

// defaultVoiceDataDir prefers the per-user voice model directory and
// falls back to the system one.
func defaultVoiceDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		userDir := filepath.Join(home, ".local", "share", "piper-voices")
		if _, err := os.Stat(userDir); err == nil {
			return userDir
		}
	}
	return "/usr/share/castmasta/voices"
}

// Deps are the collaborator wirings the agent dispatches into.
type Deps struct {
	AirPlayScanner adapters.Scanner
	CastScanner    adapters.Scanner
	AirPlayFactory adapters.AirPlayFactory
	CastFactory    adapters.CastFactory
	AirPlayPairer  adapters.AirPlayPairer
	Logf           func(format string, args ...any)
}

// ConnectOptions tune a single Connect call.
type ConnectOptions struct {
	// DeviceType forces the backend variant; empty means resolve from
	// the last scan, defaulting to AirPlay.
	DeviceType domain.DeviceType
	// PairingProtocol is the AirPlay sub-protocol preference.
	PairingProtocol domain.PairingProtocol
}

type Agent struct {
	factories   backend.Factories
	discovery   *discovery.Service
	pairing     *pairing.Manager
	credentials *credentials.Store
	pipelines   *pipeline.Runner
	logf        func(format string, args ...any)

	mu       sync.Mutex
	devices  map[string]backend.Backend
	lastScan []domain.DiscoveredDevice
}

func New(cfg Config, deps Deps) (*Agent, error) {
	logf := deps.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	if cfg.FileServerPort == 0 {
		cfg.FileServerPort = defaultFileServerPort
	}

	creds, err := credentials.NewStore(cfg.StoragePath)
	if err != nil {
		return nil, err
	}

	return &Agent{
		factories: backend.DefaultFactories(backend.Deps{
			AirPlayFactory: deps.AirPlayFactory,
			CastFactory:    deps.CastFactory,
			Credentials:    creds,
			FileServerPort: cfg.FileServerPort,
			Logf:           logf,
		}),
		discovery:   discovery.NewService(deps.AirPlayScanner, deps.CastScanner, logf),
		pairing:     pairing.NewManager(deps.AirPlayPairer, creds, logf),
		credentials: creds,
		pipelines:   pipeline.NewRunner(cfg.PiperBin, cfg.FFmpegBin, cfg.VoiceDataDir, logf),
		logf:        logf,
		devices:     map[string]backend.Backend{},
	}, nil
}

// Credentials exposes the durable store to outer layers.
func (a *Agent) Credentials() *credentials.Store { return a.credentials }

// Scan discovers both receiver families concurrently, caches the merged
// list for later identifier resolution, and returns it. One family
// failing never fails the scan.
func (a *Agent) Scan(ctx context.Context, timeout time.Duration) []domain.DiscoveredDevice {
	found := a.discovery.Scan(ctx, timeout)

	a.mu.Lock()
	a.lastScan = found
	a.mu.Unlock()
	return found
}

func (a *Agent) resolveDeviceType(identifier string) domain.DeviceType {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, dev := range a.lastScan {
		if dev.Identifier == identifier {
			return dev.DeviceType
		}
	}
	return ""
}

// Connect builds the backend variant for the device family and stores
// it in the connected-device map. The family tag comes from opts, else
// the most recent scan, else defaults to AirPlay.
func (a *Agent) Connect(ctx context.Context, identifier, address, name string, opts ConnectOptions) error {
	deviceType := opts.DeviceType
	if deviceType == "" {
		deviceType = a.resolveDeviceType(identifier)
	}
	if deviceType == "" {
		deviceType = domain.DeviceTypeAirPlay
	}

	factory, ok := a.factories[deviceType]
	if !ok {
		return domain.InvalidArgument("unknown device type %q", deviceType)
	}

	b := factory()
	target := adapters.ConnectTarget{Identifier: identifier, Address: address, Name: name}
	if err := b.Connect(ctx, target, backend.ConnectOptions{PairingProtocol: opts.PairingProtocol}); err != nil {
		return err
	}

	a.mu.Lock()
	a.devices[identifier] = b
	a.mu.Unlock()
	return nil
}

// ConnectByName scans, matches the first device whose name is exactly
// name, and connects with its resolved family. Returns the identifier.
func (a *Agent) ConnectByName(ctx context.Context, name string, opts ConnectOptions) (string, error) {
	for _, dev := range a.Scan(ctx, defaultScanTimeout) {
		if dev.Name != name {
			continue
		}
		connectOpts := opts
		connectOpts.DeviceType = dev.DeviceType
		if err := a.Connect(ctx, dev.Identifier, dev.Address, dev.Name, connectOpts); err != nil {
			return "", err
		}
		return dev.Identifier, nil
	}
	return "", domain.NotFound("device %q not found", name)
}

// ConnectByHost bypasses scan resolution with an explicit address.
func (a *Agent) ConnectByHost(ctx context.Context, name, host string, opts ConnectOptions) (string, error) {
	if err := a.Connect(ctx, name, host, name, opts); err != nil {
		return "", err
	}
	return name, nil
}

func (a *Agent) Disconnect(ctx context.Context, identifier string) error {
	a.mu.Lock()
	b, ok := a.devices[identifier]
	if ok {
		delete(a.devices, identifier)
	}
	a.mu.Unlock()

	if !ok {
		return domain.NotConnected(identifier)
	}
	return b.Disconnect(ctx)
}

func (a *Agent) DisconnectAll(ctx context.Context) error {
	a.mu.Lock()
	detached := make([]backend.Backend, 0, len(a.devices))
	for identifier, b := range a.devices {
		detached = append(detached, b)
		delete(a.devices, identifier)
	}
	a.mu.Unlock()

	var errs []error
	for _, b := range detached {
		if err := b.Disconnect(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *Agent) getBackend(identifier string) (backend.Backend, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.devices[identifier]
	if !ok {
		return nil, domain.NotConnected(identifier)
	}
	return b, nil
}

// ConnectedIdentifiers lists the devices currently held in the map.
func (a *Agent) ConnectedIdentifiers() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.devices))
	for identifier := range a.devices {
		out = append(out, identifier)
	}
	return out
}

// --- Playback ---

func (a *Agent) Play(ctx context.Context, identifier string) error {
	b, err := a.getBackend(identifier)
	if err != nil {
		return err
	}
	return b.Play(ctx)
}

func (a *Agent) Pause(ctx context.Context, identifier string) error {
	b, err := a.getBackend(identifier)
	if err != nil {
		return err
	}
	return b.Pause(ctx)
}

func (a *Agent) Stop(ctx context.Context, identifier string) error {
	b, err := a.getBackend(identifier)
	if err != nil {
		return err
	}
	return b.Stop(ctx)
}

func (a *Agent) Seek(ctx context.Context, identifier string, position float64) error {
	b, err := a.getBackend(identifier)
	if err != nil {
		return err
	}
	return b.Seek(ctx, position)
}

func (a *Agent) PlayURL(ctx context.Context, identifier, mediaURL string, position float64) error {
	b, err := a.getBackend(identifier)
	if err != nil {
		return err
	}
	if err := validateMediaURL(mediaURL); err != nil {
		return err
	}
	return b.PlayURL(ctx, mediaURL, position)
}

func (a *Agent) StreamFile(ctx context.Context, identifier, path string) error {
	b, err := a.getBackend(identifier)
	if err != nil {
		return err
	}
	resolved, err := validateMediaFile(path)
	if err != nil {
		return err
	}
	return b.StreamFile(ctx, resolved)
}

// --- Media pipelines ---

func (a *Agent) Announce(ctx context.Context, identifier, text, voice string) error {
	b, err := a.getBackend(identifier)
	if err != nil {
		return err
	}
	return a.pipelines.Announce(ctx, b, text, voice)
}

func (a *Agent) DisplayImage(ctx context.Context, identifier, imagePath string, durationSeconds int) error {
	b, err := a.getBackend(identifier)
	if err != nil {
		return err
	}
	resolved, err := validateImageFile(imagePath)
	if err != nil {
		return err
	}
	return a.pipelines.DisplayImage(ctx, b, resolved, durationSeconds)
}

// --- Volume ---

func (a *Agent) SetVolume(ctx context.Context, identifier string, volume float64) error {
	if err := validateVolume(volume); err != nil {
		return err
	}
	b, err := a.getBackend(identifier)
	if err != nil {
		return err
	}
	return b.SetVolume(ctx, volume)
}

func (a *Agent) GetVolume(ctx context.Context, identifier string) (float64, error) {
	b, err := a.getBackend(identifier)
	if err != nil {
		return 0, err
	}
	return b.GetVolume(ctx)
}

// VolumeUp reads the current volume and writes it back raised by delta,
// clamped to [0, 1]. The read-modify-write is not serialized across
// concurrent calls on the same device.
func (a *Agent) VolumeUp(ctx context.Context, identifier string, delta float64) error {
	return a.adjustVolume(ctx, identifier, delta)
}

func (a *Agent) VolumeDown(ctx context.Context, identifier string, delta float64) error {
	return a.adjustVolume(ctx, identifier, -delta)
}

func (a *Agent) adjustVolume(ctx context.Context, identifier string, signedDelta float64) error {
	delta := signedDelta
	if delta < 0 {
		delta = -delta
	}
	if err := validateDelta(delta); err != nil {
		return err
	}

	b, err := a.getBackend(identifier)
	if err != nil {
		return err
	}
	current, err := b.GetVolume(ctx)
	if err != nil {
		return err
	}

	next := current + signedDelta
	if next > 1.0 {
		next = 1.0
	}
	if next < 0.0 {
		next = 0.0
	}
	return b.SetVolume(ctx, next)
}

// --- Info ---

func (a *Agent) NowPlaying(ctx context.Context, identifier string) (domain.NowPlaying, error) {
	b, err := a.getBackend(identifier)
	if err != nil {
		return domain.NowPlaying{}, err
	}
	return b.NowPlaying(ctx)
}

// --- Power ---

func (a *Agent) PowerOn(ctx context.Context, identifier string) error {
	b, err := a.getBackend(identifier)
	if err != nil {
		return err
	}
	return b.PowerOn(ctx)
}

func (a *Agent) PowerOff(ctx context.Context, identifier string) error {
	b, err := a.getBackend(identifier)
	if err != nil {
		return err
	}
	return b.PowerOff(ctx)
}

func (a *Agent) GetPowerState(ctx context.Context, identifier string) (bool, error) {
	b, err := a.getBackend(identifier)
	if err != nil {
		return false, err
	}
	return b.PowerState(ctx)
}

// --- Remote (push-protocol only) ---

func (a *Agent) SendKey(ctx context.Context, identifier string, key domain.Key) error {
	b, err := a.getBackend(identifier)
	if err != nil {
		return err
	}
	return b.SendKey(ctx, key)
}

// --- Pairing (push-protocol only) ---

func (a *Agent) Pair(ctx context.Context, identifier, address, name string, protocol domain.PairingProtocol) (pairing.BeginResult, error) {
	if a.resolveDeviceType(identifier) == domain.DeviceTypeGoogleCast {
		return pairing.BeginResult{}, domain.UnsupportedOperation("pairing is not required for Google Cast devices")
	}
	if protocol != domain.ProtocolAirPlay && protocol != domain.ProtocolCompanion {
		return pairing.BeginResult{}, domain.InvalidArgument("unsupported protocol for pairing: %s", protocol)
	}

	target := adapters.ConnectTarget{Identifier: identifier, Address: address, Name: name}
	return a.pairing.Begin(ctx, target, protocol)
}

func (a *Agent) PairWithPIN(ctx context.Context, identifier string, protocol domain.PairingProtocol, pin string) (bool, error) {
	return a.pairing.FinishWithPIN(ctx, identifier, protocol, pin)
}
