// Package discovery fans a scan out to both receiver families and
// merges the results into one tagged list.
package discovery

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/alex/castmasta/internal/adapters"
	"github.com/alex/castmasta/internal/domain"
)

const (
	MinScanTimeout = 1 * time.Second
	MaxScanTimeout = 30 * time.Second
)

type Service struct {
	airplay adapters.Scanner
	cast    adapters.Scanner
	logf    func(format string, args ...any)
}

func NewService(airplay, cast adapters.Scanner, logf func(format string, args ...any)) *Service {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Service{airplay: airplay, cast: cast, logf: logf}
}

// ClampTimeout bounds a requested scan timeout to [MinScanTimeout, MaxScanTimeout].
func ClampTimeout(timeout time.Duration) time.Duration {
	if timeout < MinScanTimeout {
		return MinScanTimeout
	}
	if timeout > MaxScanTimeout {
		return MaxScanTimeout
	}
	return timeout
}

// Scan runs both family discoveries concurrently and joins them. A
// failing family degrades to an empty result for that family only; the
// merged scan itself always succeeds.
func (s *Service) Scan(ctx context.Context, timeout time.Duration) []domain.DiscoveredDevice {
	timeout = ClampTimeout(timeout)

	airplayCh := make(chan []domain.DiscoveredDevice, 1)
	castCh := make(chan []domain.DiscoveredDevice, 1)
	go func() {
		airplayCh <- s.scanFamily(ctx, s.airplay, "airplay", timeout)
	}()
	go func() {
		castCh <- s.scanFamily(ctx, s.cast, "googlecast", timeout)
	}()

	merged := append(<-airplayCh, <-castCh...)
	return merged
}

func (s *Service) scanFamily(ctx context.Context, scanner adapters.Scanner, family string, timeout time.Duration) []domain.DiscoveredDevice {
	if scanner == nil {
		s.logf("%s scan skipped: scanner is not configured", family)
		return []domain.DiscoveredDevice{}
	}

	found, err := scanner.Scan(ctx, timeout)
	if err != nil {
		s.logf("%s scan failed: %v", family, err)
		return []domain.DiscoveredDevice{}
	}

	normalized := make([]domain.DiscoveredDevice, 0, len(found))
	for _, dev := range found {
		dev.Name = strings.TrimSpace(dev.Name)
		dev.Address = strings.TrimSpace(dev.Address)
		dev.Identifier = strings.TrimSpace(dev.Identifier)
		if dev.Identifier == "" {
			continue
		}
		if dev.Protocols == nil {
			dev.Protocols = []string{}
		}
		normalized = append(normalized, dev)
	}
	sort.Slice(normalized, func(i, j int) bool {
		if !strings.EqualFold(normalized[i].Name, normalized[j].Name) {
			return strings.ToLower(normalized[i].Name) < strings.ToLower(normalized[j].Name)
		}
		return normalized[i].Identifier < normalized[j].Identifier
	})
	return normalized
}
