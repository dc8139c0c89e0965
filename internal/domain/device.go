package domain

// DeviceType tags the protocol family a receiver belongs to.
type DeviceType string

const (
	DeviceTypeAirPlay    DeviceType = "airplay"
	DeviceTypeGoogleCast DeviceType = "googlecast"
)

// DiscoveredDevice is one raw discovery result, merged across families.
type DiscoveredDevice struct {
	Name       string     `json:"name"`
	Address    string     `json:"address"`
	Identifier string     `json:"identifier"`
	DeviceType DeviceType `json:"device_type"`
	Protocols  []string   `json:"protocols"`
}

// NowPlaying describes the media state reported by a connected receiver.
// Pointer fields are nil when the underlying protocol does not know them.
type NowPlaying struct {
	MediaType   string   `json:"media_type,omitempty"`
	DeviceState string   `json:"device_state,omitempty"`
	Title       string   `json:"title,omitempty"`
	Artist      string   `json:"artist,omitempty"`
	Album       string   `json:"album,omitempty"`
	Position    *float64 `json:"position"`
	TotalTime   *float64 `json:"total_time"`
}

// Key is one press on a push-protocol device's remote.
type Key string

const (
	KeyUp        Key = "up"
	KeyDown      Key = "down"
	KeyLeft      Key = "left"
	KeyRight     Key = "right"
	KeySelect    Key = "select"
	KeyMenu      Key = "menu"
	KeyHome      Key = "home"
	KeyPlay      Key = "play"
	KeyPause     Key = "pause"
	KeyPlayPause Key = "play_pause"
	KeyNext      Key = "next"
	KeyPrevious  Key = "previous"
)

var remoteKeys = map[Key]struct{}{
	KeyUp: {}, KeyDown: {}, KeyLeft: {}, KeyRight: {},
	KeySelect: {}, KeyMenu: {}, KeyHome: {},
	KeyPlay: {}, KeyPause: {}, KeyPlayPause: {},
	KeyNext: {}, KeyPrevious: {},
}

// ValidKey reports whether k is part of the fixed remote key set.
func ValidKey(k Key) bool {
	_, ok := remoteKeys[k]
	return ok
}

// PairingProtocol names the sub-protocol a pairing handshake runs over.
type PairingProtocol string

const (
	ProtocolAirPlay   PairingProtocol = "AirPlay"
	ProtocolCompanion PairingProtocol = "Companion"
	ProtocolRAOP      PairingProtocol = "RAOP"
)
