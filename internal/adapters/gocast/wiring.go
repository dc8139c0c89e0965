// Package gocast wires the Google Cast collaborator contracts to
// github.com/vishen/go-chromecast.
package gocast

import (
	"context"
	"strings"
	"time"

	"github.com/vishen/go-chromecast/application"
	castdns "github.com/vishen/go-chromecast/dns"

	"github.com/alex/castmasta/internal/adapters"
	"github.com/alex/castmasta/internal/domain"
)

type Scanner struct{}

func (Scanner) Scan(ctx context.Context, timeout time.Duration) ([]domain.DiscoveredDevice, error) {
	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries, err := castdns.DiscoverCastDNSEntries(scanCtx, nil)
	if err != nil {
		return nil, err
	}

	found := []domain.DiscoveredDevice{}
	seen := map[string]struct{}{}
	for entry := range entries {
		identifier := strings.TrimSpace(entry.UUID)
		if identifier == "" {
			identifier = entry.AddrV4.String()
		}
		if _, ok := seen[identifier]; ok {
			continue
		}
		seen[identifier] = struct{}{}

		found = append(found, domain.DiscoveredDevice{
			Name:       strings.TrimSpace(entry.DeviceName),
			Address:    entry.AddrV4.String(),
			Identifier: identifier,
			DeviceType: domain.DeviceTypeGoogleCast,
			Protocols:  []string{"googlecast"},
		})
	}
	return found, nil
}

type Factory struct{}

// Connect dials the receiver. go-chromecast's Start takes no context,
// so cancellation is honored by abandoning the dial; a connection that
// completes after cancellation is closed in the background.
func (Factory) Connect(ctx context.Context, address string, port int) (adapters.CastConn, error) {
	app := application.NewApplication()
	done := make(chan error, 1)
	go func() { done <- app.Start(address, port) }()

	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
		return &Conn{app: app}, nil
	case <-ctx.Done():
		go func() {
			if err := <-done; err == nil {
				_ = app.Close(false)
			}
		}()
		return nil, ctx.Err()
	}
}

// Conn adapts one go-chromecast application session.
type Conn struct {
	app *application.Application
}

func (c *Conn) Load(_ context.Context, mediaURL, contentType string) error {
	return c.app.Load(mediaURL, 0, contentType, false, true, false)
}

func (c *Conn) Play(_ context.Context) error {
	return c.app.Unpause()
}

func (c *Conn) Pause(_ context.Context) error {
	return c.app.Pause()
}

func (c *Conn) Stop(_ context.Context) error {
	return c.app.StopMedia()
}

func (c *Conn) Seek(_ context.Context, seconds float64) error {
	return c.app.SeekToTime(float32(seconds))
}

func (c *Conn) SetVolume(_ context.Context, level float64) error {
	return c.app.SetVolume(float32(level))
}

func (c *Conn) Volume(_ context.Context) (float64, error) {
	if err := c.app.Update(); err != nil {
		return 0, err
	}
	_, _, volume := c.app.Status()
	if volume == nil {
		return 0, nil
	}
	return float64(volume.Level), nil
}

func (c *Conn) Status(_ context.Context) (domain.NowPlaying, error) {
	if err := c.app.Update(); err != nil {
		return domain.NowPlaying{}, err
	}

	_, media, _ := c.app.Status()
	playing := domain.NowPlaying{}
	if media == nil {
		return playing, nil
	}

	playing.DeviceState = strings.ToLower(strings.TrimSpace(media.PlayerState))
	playing.MediaType = media.Media.ContentType
	playing.Title = media.Media.Metadata.Title
	playing.Artist = media.Media.Metadata.Artist
	if media.CurrentTime > 0 {
		position := float64(media.CurrentTime)
		playing.Position = &position
	}
	if media.Media.Duration > 0 {
		total := float64(media.Media.Duration)
		playing.TotalTime = &total
	}
	return playing, nil
}

func (c *Conn) QuitApp(_ context.Context) error {
	return c.app.Stop()
}

func (c *Conn) Close() error {
	return c.app.Close(false)
}

var (
	_ adapters.Scanner     = Scanner{}
	_ adapters.CastFactory = Factory{}
	_ adapters.CastConn    = (*Conn)(nil)
)
