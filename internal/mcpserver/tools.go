package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alex/castmasta/internal/agent"
	"github.com/alex/castmasta/internal/domain"
)

func (s *Server) buildHandlers() map[string]toolHandler {
	handlers := map[string]toolHandler{
		"scan_devices":           s.handleScanDevices,
		"connect_device":         s.handleConnectDevice,
		"connect_device_by_name": s.handleConnectDeviceByName,
		"connect_device_by_host": s.handleConnectDeviceByHost,
		"disconnect_device":      s.handleDisconnectDevice,
		"disconnect_all":         s.handleDisconnectAll,
		"seek":                   s.handleSeek,
		"play_url":               s.handlePlayURL,
		"stream_file":            s.handleStreamFile,
		"announce":               s.handleAnnounce,
		"display_image":          s.handleDisplayImage,
		"set_volume":             s.handleSetVolume,
		"get_volume":             s.handleGetVolume,
		"volume_up":              s.handleVolumeStep(true),
		"volume_down":            s.handleVolumeStep(false),
		"now_playing":            s.handleNowPlaying,
		"get_power_state":        s.handleGetPowerState,
		"send_key":               s.handleSendKey,
		"pair_device":            s.handlePairDevice,
		"pair_device_with_pin":   s.handlePairDeviceWithPIN,
	}

	// The playback and power verbs all take a bare identifier.
	simple := map[string]struct {
		op   func(ctx context.Context, identifier string) error
		text string
	}{
		"play":      {op: func(ctx context.Context, id string) error { return s.controller.Play(ctx, id) }, text: "Playback resumed on %s."},
		"pause":     {op: func(ctx context.Context, id string) error { return s.controller.Pause(ctx, id) }, text: "Playback paused on %s."},
		"stop":      {op: func(ctx context.Context, id string) error { return s.controller.Stop(ctx, id) }, text: "Playback stopped on %s."},
		"power_on":  {op: func(ctx context.Context, id string) error { return s.controller.PowerOn(ctx, id) }, text: "Powered on %s."},
		"power_off": {op: func(ctx context.Context, id string) error { return s.controller.PowerOff(ctx, id) }, text: "Powered off %s."},
	}
	for name, entry := range simple {
		handlers[name] = s.identifierTool(name, entry.op, entry.text)
	}
	return handlers
}

type identifierArgs struct {
	Identifier string `json:"identifier"`
}

func (s *Server) identifierTool(name string, op func(ctx context.Context, identifier string) error, okFormat string) toolHandler {
	return func(ctx context.Context, id json.RawMessage, rawArgs json.RawMessage) error {
		startedAt := time.Now()

		var args identifierArgs
		if err := decodeStrict(rawArgs, &args); err != nil {
			return s.sendInvalidParams(name, "", startedAt, id)
		}
		args.Identifier = strings.TrimSpace(args.Identifier)
		if args.Identifier == "" {
			return s.sendInvalidParams(name, "", startedAt, id)
		}

		if err := op(ctx, args.Identifier); err != nil {
			return s.sendToolError(name, args.Identifier, startedAt, id, err)
		}
		return s.sendToolResult(name, args.Identifier, startedAt, id,
			fmt.Sprintf(okFormat, args.Identifier),
			map[string]any{"identifier": args.Identifier})
	}
}

func (s *Server) handleScanDevices(ctx context.Context, id json.RawMessage, rawArgs json.RawMessage) error {
	startedAt := time.Now()

	timeoutSeconds := defaultScanTimeoutSeconds
	var args struct {
		Timeout *float64 `json:"timeout,omitempty"`
	}
	if err := decodeStrict(rawArgs, &args); err != nil {
		return s.sendInvalidParams("scan_devices", "", startedAt, id)
	}
	if args.Timeout != nil {
		if *args.Timeout <= 0 {
			return s.sendInvalidParams("scan_devices", "", startedAt, id)
		}
		timeoutSeconds = *args.Timeout
	}

	devices := s.controller.Scan(ctx, time.Duration(timeoutSeconds*float64(time.Second)))

	text := fmt.Sprintf("Discovered %d device(s).", len(devices))
	if len(devices) > 0 {
		text += "\n" + formatDiscoveredDevices(devices)
	}
	return s.sendToolResult("scan_devices", "", startedAt, id, text, map[string]any{
		"count":   len(devices),
		"devices": devices,
	})
}

func (s *Server) handleConnectDevice(ctx context.Context, id json.RawMessage, rawArgs json.RawMessage) error {
	startedAt := time.Now()

	var args struct {
		Identifier string `json:"identifier"`
		Address    string `json:"address"`
		Name       string `json:"name,omitempty"`
		DeviceType string `json:"device_type,omitempty"`
		Protocol   string `json:"protocol,omitempty"`
	}
	if err := decodeStrict(rawArgs, &args); err != nil {
		return s.sendInvalidParams("connect_device", "", startedAt, id)
	}
	args.Identifier = strings.TrimSpace(args.Identifier)
	args.Address = strings.TrimSpace(args.Address)
	if args.Identifier == "" || args.Address == "" {
		return s.sendInvalidParams("connect_device", args.Identifier, startedAt, id)
	}

	opts := agent.ConnectOptions{
		DeviceType:      domain.DeviceType(strings.ToLower(strings.TrimSpace(args.DeviceType))),
		PairingProtocol: domain.PairingProtocol(strings.TrimSpace(args.Protocol)),
	}
	if opts.DeviceType != "" && opts.DeviceType != domain.DeviceTypeAirPlay && opts.DeviceType != domain.DeviceTypeGoogleCast {
		return s.sendInvalidParams("connect_device", args.Identifier, startedAt, id)
	}

	if err := s.controller.Connect(ctx, args.Identifier, args.Address, strings.TrimSpace(args.Name), opts); err != nil {
		return s.sendToolError("connect_device", args.Identifier, startedAt, id, err)
	}
	return s.sendToolResult("connect_device", args.Identifier, startedAt, id,
		fmt.Sprintf("Connected to %s.", args.Identifier),
		map[string]any{"identifier": args.Identifier})
}

func (s *Server) handleConnectDeviceByName(ctx context.Context, id json.RawMessage, rawArgs json.RawMessage) error {
	startedAt := time.Now()

	var args struct {
		Name     string `json:"name"`
		Protocol string `json:"protocol,omitempty"`
	}
	if err := decodeStrict(rawArgs, &args); err != nil {
		return s.sendInvalidParams("connect_device_by_name", "", startedAt, id)
	}
	args.Name = strings.TrimSpace(args.Name)
	if args.Name == "" {
		return s.sendInvalidParams("connect_device_by_name", "", startedAt, id)
	}

	identifier, err := s.controller.ConnectByName(ctx, args.Name, agent.ConnectOptions{
		PairingProtocol: domain.PairingProtocol(strings.TrimSpace(args.Protocol)),
	})
	if err != nil {
		return s.sendToolError("connect_device_by_name", "", startedAt, id, err)
	}
	return s.sendToolResult("connect_device_by_name", identifier, startedAt, id,
		fmt.Sprintf("Connected to %s (%s).", args.Name, identifier),
		map[string]any{"identifier": identifier, "name": args.Name})
}

func (s *Server) handleConnectDeviceByHost(ctx context.Context, id json.RawMessage, rawArgs json.RawMessage) error {
	startedAt := time.Now()

	var args struct {
		Name       string `json:"name"`
		Host       string `json:"host"`
		DeviceType string `json:"device_type,omitempty"`
		Protocol   string `json:"protocol,omitempty"`
	}
	if err := decodeStrict(rawArgs, &args); err != nil {
		return s.sendInvalidParams("connect_device_by_host", "", startedAt, id)
	}
	args.Name = strings.TrimSpace(args.Name)
	args.Host = strings.TrimSpace(args.Host)
	if args.Name == "" || args.Host == "" {
		return s.sendInvalidParams("connect_device_by_host", args.Name, startedAt, id)
	}

	identifier, err := s.controller.ConnectByHost(ctx, args.Name, args.Host, agent.ConnectOptions{
		DeviceType:      domain.DeviceType(strings.ToLower(strings.TrimSpace(args.DeviceType))),
		PairingProtocol: domain.PairingProtocol(strings.TrimSpace(args.Protocol)),
	})
	if err != nil {
		return s.sendToolError("connect_device_by_host", args.Name, startedAt, id, err)
	}
	return s.sendToolResult("connect_device_by_host", identifier, startedAt, id,
		fmt.Sprintf("Connected to %s at %s.", args.Name, args.Host),
		map[string]any{"identifier": identifier, "host": args.Host})
}

func (s *Server) handleDisconnectDevice(ctx context.Context, id json.RawMessage, rawArgs json.RawMessage) error {
	return s.identifierTool("disconnect_device",
		func(ctx context.Context, identifier string) error { return s.controller.Disconnect(ctx, identifier) },
		"Disconnected from %s.")(ctx, id, rawArgs)
}

func (s *Server) handleDisconnectAll(ctx context.Context, id json.RawMessage, rawArgs json.RawMessage) error {
	startedAt := time.Now()

	var args struct{}
	if err := decodeStrict(rawArgs, &args); err != nil {
		return s.sendInvalidParams("disconnect_all", "", startedAt, id)
	}
	if err := s.controller.DisconnectAll(ctx); err != nil {
		return s.sendToolError("disconnect_all", "", startedAt, id, err)
	}
	return s.sendToolResult("disconnect_all", "", startedAt, id, "Disconnected from all devices.", nil)
}

func (s *Server) handleSeek(ctx context.Context, id json.RawMessage, rawArgs json.RawMessage) error {
	startedAt := time.Now()

	var args struct {
		Identifier string   `json:"identifier"`
		Position   *float64 `json:"position"`
	}
	if err := decodeStrict(rawArgs, &args); err != nil {
		return s.sendInvalidParams("seek", "", startedAt, id)
	}
	args.Identifier = strings.TrimSpace(args.Identifier)
	if args.Identifier == "" || args.Position == nil {
		return s.sendInvalidParams("seek", args.Identifier, startedAt, id)
	}

	if err := s.controller.Seek(ctx, args.Identifier, *args.Position); err != nil {
		return s.sendToolError("seek", args.Identifier, startedAt, id, err)
	}
	return s.sendToolResult("seek", args.Identifier, startedAt, id,
		fmt.Sprintf("Seeked to %.1fs on %s.", *args.Position, args.Identifier),
		map[string]any{"identifier": args.Identifier, "position": *args.Position})
}

func (s *Server) handlePlayURL(ctx context.Context, id json.RawMessage, rawArgs json.RawMessage) error {
	startedAt := time.Now()

	var args struct {
		Identifier string   `json:"identifier"`
		URL        string   `json:"url"`
		Position   *float64 `json:"position,omitempty"`
	}
	if err := decodeStrict(rawArgs, &args); err != nil {
		return s.sendInvalidParams("play_url", "", startedAt, id)
	}
	args.Identifier = strings.TrimSpace(args.Identifier)
	args.URL = strings.TrimSpace(args.URL)
	if args.Identifier == "" || args.URL == "" {
		return s.sendInvalidParams("play_url", args.Identifier, startedAt, id)
	}

	position := 0.0
	if args.Position != nil {
		position = *args.Position
	}
	if err := s.controller.PlayURL(ctx, args.Identifier, args.URL, position); err != nil {
		return s.sendToolError("play_url", args.Identifier, startedAt, id, err)
	}
	return s.sendToolResult("play_url", args.Identifier, startedAt, id,
		fmt.Sprintf("Playing %s on %s.", args.URL, args.Identifier),
		map[string]any{"identifier": args.Identifier, "url": args.URL})
}

func (s *Server) handleStreamFile(ctx context.Context, id json.RawMessage, rawArgs json.RawMessage) error {
	startedAt := time.Now()

	var args struct {
		Identifier string `json:"identifier"`
		Path       string `json:"path"`
	}
	if err := decodeStrict(rawArgs, &args); err != nil {
		return s.sendInvalidParams("stream_file", "", startedAt, id)
	}
	args.Identifier = strings.TrimSpace(args.Identifier)
	args.Path = strings.TrimSpace(args.Path)
	if args.Identifier == "" || args.Path == "" {
		return s.sendInvalidParams("stream_file", args.Identifier, startedAt, id)
	}

	if err := s.controller.StreamFile(ctx, args.Identifier, args.Path); err != nil {
		return s.sendToolError("stream_file", args.Identifier, startedAt, id, err)
	}
	return s.sendToolResult("stream_file", args.Identifier, startedAt, id,
		fmt.Sprintf("Streaming %s on %s.", args.Path, args.Identifier),
		map[string]any{"identifier": args.Identifier, "path": args.Path})
}

func (s *Server) handleAnnounce(ctx context.Context, id json.RawMessage, rawArgs json.RawMessage) error {
	startedAt := time.Now()

	var args struct {
		Identifier string `json:"identifier"`
		Text       string `json:"text"`
		Voice      string `json:"voice,omitempty"`
	}
	if err := decodeStrict(rawArgs, &args); err != nil {
		return s.sendInvalidParams("announce", "", startedAt, id)
	}
	args.Identifier = strings.TrimSpace(args.Identifier)
	if args.Identifier == "" {
		return s.sendInvalidParams("announce", "", startedAt, id)
	}

	if err := s.controller.Announce(ctx, args.Identifier, args.Text, strings.TrimSpace(args.Voice)); err != nil {
		return s.sendToolError("announce", args.Identifier, startedAt, id, err)
	}
	return s.sendToolResult("announce", args.Identifier, startedAt, id,
		fmt.Sprintf("Announcement sent to %s.", args.Identifier),
		map[string]any{"identifier": args.Identifier})
}

func (s *Server) handleDisplayImage(ctx context.Context, id json.RawMessage, rawArgs json.RawMessage) error {
	startedAt := time.Now()

	var args struct {
		Identifier string `json:"identifier"`
		ImagePath  string `json:"image_path"`
		Duration   *int   `json:"duration,omitempty"`
	}
	if err := decodeStrict(rawArgs, &args); err != nil {
		return s.sendInvalidParams("display_image", "", startedAt, id)
	}
	args.Identifier = strings.TrimSpace(args.Identifier)
	args.ImagePath = strings.TrimSpace(args.ImagePath)
	if args.Identifier == "" || args.ImagePath == "" {
		return s.sendInvalidParams("display_image", args.Identifier, startedAt, id)
	}

	duration := defaultDisplaySeconds
	if args.Duration != nil {
		duration = *args.Duration
	}
	if err := s.controller.DisplayImage(ctx, args.Identifier, args.ImagePath, duration); err != nil {
		return s.sendToolError("display_image", args.Identifier, startedAt, id, err)
	}
	return s.sendToolResult("display_image", args.Identifier, startedAt, id,
		fmt.Sprintf("Displaying %s on %s for %ds.", args.ImagePath, args.Identifier, duration),
		map[string]any{"identifier": args.Identifier, "duration": duration})
}

func (s *Server) handleSetVolume(ctx context.Context, id json.RawMessage, rawArgs json.RawMessage) error {
	startedAt := time.Now()

	var args struct {
		Identifier string   `json:"identifier"`
		Volume     *float64 `json:"volume"`
	}
	if err := decodeStrict(rawArgs, &args); err != nil {
		return s.sendInvalidParams("set_volume", "", startedAt, id)
	}
	args.Identifier = strings.TrimSpace(args.Identifier)
	if args.Identifier == "" || args.Volume == nil {
		return s.sendInvalidParams("set_volume", args.Identifier, startedAt, id)
	}

	if err := s.controller.SetVolume(ctx, args.Identifier, *args.Volume); err != nil {
		return s.sendToolError("set_volume", args.Identifier, startedAt, id, err)
	}
	return s.sendToolResult("set_volume", args.Identifier, startedAt, id,
		fmt.Sprintf("Volume set to %.2f on %s.", *args.Volume, args.Identifier),
		map[string]any{"identifier": args.Identifier, "volume": *args.Volume})
}

func (s *Server) handleGetVolume(ctx context.Context, id json.RawMessage, rawArgs json.RawMessage) error {
	startedAt := time.Now()

	var args identifierArgs
	if err := decodeStrict(rawArgs, &args); err != nil {
		return s.sendInvalidParams("get_volume", "", startedAt, id)
	}
	args.Identifier = strings.TrimSpace(args.Identifier)
	if args.Identifier == "" {
		return s.sendInvalidParams("get_volume", "", startedAt, id)
	}

	volume, err := s.controller.GetVolume(ctx, args.Identifier)
	if err != nil {
		return s.sendToolError("get_volume", args.Identifier, startedAt, id, err)
	}
	return s.sendToolResult("get_volume", args.Identifier, startedAt, id,
		fmt.Sprintf("Volume is %.2f on %s.", volume, args.Identifier),
		map[string]any{"identifier": args.Identifier, "volume": volume})
}

func (s *Server) handleVolumeStep(up bool) toolHandler {
	name := "volume_down"
	verb := "lowered"
	if up {
		name = "volume_up"
		verb = "raised"
	}
	return func(ctx context.Context, id json.RawMessage, rawArgs json.RawMessage) error {
		startedAt := time.Now()

		var args struct {
			Identifier string   `json:"identifier"`
			Delta      *float64 `json:"delta,omitempty"`
		}
		if err := decodeStrict(rawArgs, &args); err != nil {
			return s.sendInvalidParams(name, "", startedAt, id)
		}
		args.Identifier = strings.TrimSpace(args.Identifier)
		if args.Identifier == "" {
			return s.sendInvalidParams(name, "", startedAt, id)
		}

		delta := defaultVolumeStep
		if args.Delta != nil {
			delta = *args.Delta
		}

		var err error
		if up {
			err = s.controller.VolumeUp(ctx, args.Identifier, delta)
		} else {
			err = s.controller.VolumeDown(ctx, args.Identifier, delta)
		}
		if err != nil {
			return s.sendToolError(name, args.Identifier, startedAt, id, err)
		}
		return s.sendToolResult(name, args.Identifier, startedAt, id,
			fmt.Sprintf("Volume %s by %.2f on %s.", verb, delta, args.Identifier),
			map[string]any{"identifier": args.Identifier, "delta": delta})
	}
}

func (s *Server) handleNowPlaying(ctx context.Context, id json.RawMessage, rawArgs json.RawMessage) error {
	startedAt := time.Now()

	var args identifierArgs
	if err := decodeStrict(rawArgs, &args); err != nil {
		return s.sendInvalidParams("now_playing", "", startedAt, id)
	}
	args.Identifier = strings.TrimSpace(args.Identifier)
	if args.Identifier == "" {
		return s.sendInvalidParams("now_playing", "", startedAt, id)
	}

	info, err := s.controller.NowPlaying(ctx, args.Identifier)
	if err != nil {
		return s.sendToolError("now_playing", args.Identifier, startedAt, id, err)
	}

	text := fmt.Sprintf("State: %s", info.DeviceState)
	if info.Title != "" {
		text += fmt.Sprintf("\nTitle: %s", info.Title)
	}
	if info.Artist != "" {
		text += fmt.Sprintf("\nArtist: %s", info.Artist)
	}
	if info.Position != nil && info.TotalTime != nil {
		text += fmt.Sprintf("\nPosition: %.0f/%.0fs", *info.Position, *info.TotalTime)
	}
	return s.sendToolResult("now_playing", args.Identifier, startedAt, id, text, info)
}

func (s *Server) handleGetPowerState(ctx context.Context, id json.RawMessage, rawArgs json.RawMessage) error {
	startedAt := time.Now()

	var args identifierArgs
	if err := decodeStrict(rawArgs, &args); err != nil {
		return s.sendInvalidParams("get_power_state", "", startedAt, id)
	}
	args.Identifier = strings.TrimSpace(args.Identifier)
	if args.Identifier == "" {
		return s.sendInvalidParams("get_power_state", "", startedAt, id)
	}

	on, err := s.controller.GetPowerState(ctx, args.Identifier)
	if err != nil {
		return s.sendToolError("get_power_state", args.Identifier, startedAt, id, err)
	}
	state := "off"
	if on {
		state = "on"
	}
	return s.sendToolResult("get_power_state", args.Identifier, startedAt, id,
		fmt.Sprintf("Device %s is %s.", args.Identifier, state),
		map[string]any{"identifier": args.Identifier, "power": state})
}

func (s *Server) handleSendKey(ctx context.Context, id json.RawMessage, rawArgs json.RawMessage) error {
	startedAt := time.Now()

	var args struct {
		Identifier string `json:"identifier"`
		Key        string `json:"key"`
	}
	if err := decodeStrict(rawArgs, &args); err != nil {
		return s.sendInvalidParams("send_key", "", startedAt, id)
	}
	args.Identifier = strings.TrimSpace(args.Identifier)
	args.Key = strings.ToLower(strings.TrimSpace(args.Key))
	if args.Identifier == "" || args.Key == "" {
		return s.sendInvalidParams("send_key", args.Identifier, startedAt, id)
	}

	if err := s.controller.SendKey(ctx, args.Identifier, domain.Key(args.Key)); err != nil {
		return s.sendToolError("send_key", args.Identifier, startedAt, id, err)
	}
	return s.sendToolResult("send_key", args.Identifier, startedAt, id,
		fmt.Sprintf("Sent key %q to %s.", args.Key, args.Identifier),
		map[string]any{"identifier": args.Identifier, "key": args.Key})
}

func (s *Server) handlePairDevice(ctx context.Context, id json.RawMessage, rawArgs json.RawMessage) error {
	startedAt := time.Now()

	var args struct {
		Identifier string `json:"identifier"`
		Address    string `json:"address"`
		Name       string `json:"name,omitempty"`
		Protocol   string `json:"protocol,omitempty"`
	}
	if err := decodeStrict(rawArgs, &args); err != nil {
		return s.sendInvalidParams("pair_device", "", startedAt, id)
	}
	args.Identifier = strings.TrimSpace(args.Identifier)
	args.Address = strings.TrimSpace(args.Address)
	if args.Identifier == "" || args.Address == "" {
		return s.sendInvalidParams("pair_device", args.Identifier, startedAt, id)
	}

	protocol := defaultPairingProtocol
	if trimmed := strings.TrimSpace(args.Protocol); trimmed != "" {
		protocol = domain.PairingProtocol(trimmed)
	}

	result, err := s.controller.Pair(ctx, args.Identifier, args.Address, strings.TrimSpace(args.Name), protocol)
	if err != nil {
		return s.sendToolError("pair_device", args.Identifier, startedAt, id, err)
	}
	return s.sendToolResult("pair_device", args.Identifier, startedAt, id,
		result.Message,
		map[string]any{"identifier": args.Identifier, "status": result.Status, "protocol": string(protocol)})
}

func (s *Server) handlePairDeviceWithPIN(ctx context.Context, id json.RawMessage, rawArgs json.RawMessage) error {
	startedAt := time.Now()

	var args struct {
		Identifier string `json:"identifier"`
		PIN        string `json:"pin"`
		Protocol   string `json:"protocol,omitempty"`
	}
	if err := decodeStrict(rawArgs, &args); err != nil {
		return s.sendInvalidParams("pair_device_with_pin", "", startedAt, id)
	}
	args.Identifier = strings.TrimSpace(args.Identifier)
	args.PIN = strings.TrimSpace(args.PIN)
	if args.Identifier == "" || args.PIN == "" {
		return s.sendInvalidParams("pair_device_with_pin", args.Identifier, startedAt, id)
	}

	protocol := defaultPairingProtocol
	if trimmed := strings.TrimSpace(args.Protocol); trimmed != "" {
		protocol = domain.PairingProtocol(trimmed)
	}

	paired, err := s.controller.PairWithPIN(ctx, args.Identifier, protocol, args.PIN)
	if err != nil {
		return s.sendToolError("pair_device_with_pin", args.Identifier, startedAt, id, err)
	}

	text := "Pairing did not complete; the device rejected the PIN."
	if paired {
		text = fmt.Sprintf("Paired with %s; credentials saved.", args.Identifier)
	}
	return s.sendToolResult("pair_device_with_pin", args.Identifier, startedAt, id, text,
		map[string]any{"identifier": args.Identifier, "paired": paired})
}
