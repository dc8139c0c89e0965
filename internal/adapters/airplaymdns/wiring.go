// Package airplaymdns wires the AirPlay family scanner contract to
// github.com/hashicorp/mdns. Connection and pairing stay collaborator
// contracts: the AirPlay/RAOP wire protocol itself is out of scope.
package airplaymdns

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/mdns"

	"github.com/alex/castmasta/internal/adapters"
	"github.com/alex/castmasta/internal/domain"
)

const (
	airplayService = "_airplay._tcp"
	raopService    = "_raop._tcp"
)

// query is a seam for tests.
var query = mdns.Query

type Scanner struct{}

func (Scanner) Scan(ctx context.Context, timeout time.Duration) ([]domain.DiscoveredDevice, error) {
	services := []string{airplayService, raopService}
	perService := timeout / time.Duration(len(services))
	if perService <= 0 {
		perService = timeout
	}

	byAddress := map[string]*domain.DiscoveredDevice{}
	for _, service := range services {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		entriesCh := make(chan *mdns.ServiceEntry, 32)
		collected := make(chan struct{})
		go func() {
			defer close(collected)
			for entry := range entriesCh {
				mergeEntry(byAddress, service, entry)
			}
		}()

		params := mdns.DefaultParams(service)
		params.Timeout = perService
		params.Entries = entriesCh
		params.DisableIPv6 = true
		err := query(params)
		close(entriesCh)
		<-collected
		if err != nil {
			return nil, err
		}
	}

	found := make([]domain.DiscoveredDevice, 0, len(byAddress))
	for _, dev := range byAddress {
		sort.Strings(dev.Protocols)
		found = append(found, *dev)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	return found, nil
}

func mergeEntry(byAddress map[string]*domain.DiscoveredDevice, service string, entry *mdns.ServiceEntry) {
	if entry == nil || entry.AddrV4 == nil {
		return
	}
	address := entry.AddrV4.String()

	dev, ok := byAddress[address]
	if !ok {
		dev = &domain.DiscoveredDevice{
			Address:    address,
			DeviceType: domain.DeviceTypeAirPlay,
		}
		byAddress[address] = dev
	}

	protocol := string(domain.ProtocolAirPlay)
	if service == raopService {
		protocol = string(domain.ProtocolRAOP)
	}
	if !containsString(dev.Protocols, protocol) {
		dev.Protocols = append(dev.Protocols, protocol)
	}

	if name := instanceName(entry.Name, service); name != "" && (dev.Name == "" || service == airplayService) {
		dev.Name = name
	}
	if id := deviceID(entry); id != "" && dev.Identifier == "" {
		dev.Identifier = id
	}
	if dev.Identifier == "" {
		dev.Identifier = address
	}
}

// instanceName strips the service and domain labels, plus the "MAC@"
// prefix RAOP instances carry.
func instanceName(full, service string) string {
	name := full
	if idx := strings.Index(name, "."+service); idx >= 0 {
		name = name[:idx]
	}
	if service == raopService {
		if _, room, ok := strings.Cut(name, "@"); ok {
			name = room
		}
	}
	return strings.TrimSpace(strings.ReplaceAll(name, "\\ ", " "))
}

// deviceID pulls the stable identifier out of the TXT records
// (deviceid= for AirPlay, pk= as a fallback).
func deviceID(entry *mdns.ServiceEntry) string {
	for _, field := range entry.InfoFields {
		if rest, ok := strings.CutPrefix(field, "deviceid="); ok {
			return strings.ToLower(strings.TrimSpace(rest))
		}
	}
	for _, field := range entry.InfoFields {
		if rest, ok := strings.CutPrefix(field, "pk="); ok {
			return strings.ToLower(strings.TrimSpace(rest))
		}
	}
	return ""
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

var _ adapters.Scanner = Scanner{}
