package mcpserver

// Tool schemas follow the MCP inputSchema JSON Schema subset. Every
// schema closes additionalProperties so typo'd argument names fail
// loudly instead of being silently ignored.

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func numberProp(description string) map[string]any {
	return map[string]any{"type": "number", "description": description}
}

var identifierProp = stringProp("The device identifier. Obtain it from 'scan_devices' or a connect tool.")

func identifierOnlySchema() map[string]any {
	return objectSchema(map[string]any{"identifier": identifierProp}, "identifier")
}

func staticTools() []tool {
	return []tool{
		{
			Name:        "scan_devices",
			Description: "Discover AirPlay (Apple TV, HomePod) and Google Cast (Chromecast) devices on the local network. Call this first to find device identifiers.",
			InputSchema: objectSchema(map[string]any{
				"timeout": map[string]any{
					"type":        "number",
					"default":     defaultScanTimeoutSeconds,
					"description": "Discovery timeout in seconds. Clamped to a sane range.",
				},
			}),
		},
		{
			Name:        "connect_device",
			Description: "Connect to a device by identifier and IP address. The device family is resolved from the last scan; pass device_type to force it.",
			InputSchema: objectSchema(map[string]any{
				"identifier":  identifierProp,
				"address":     stringProp("The device IP address."),
				"name":        stringProp("Optional friendly name for logs."),
				"device_type": map[string]any{"type": "string", "enum": []string{"airplay", "googlecast"}, "description": "Force the device family instead of resolving it from the last scan."},
				"protocol":    stringProp("AirPlay credential protocol preference (AirPlay, Companion, RAOP)."),
			}, "identifier", "address"),
		},
		{
			Name:        "connect_device_by_name",
			Description: "Scan the network and connect to the device whose name matches exactly.",
			InputSchema: objectSchema(map[string]any{
				"name":     stringProp("The exact device name as shown by scan_devices."),
				"protocol": stringProp("AirPlay credential protocol preference."),
			}, "name"),
		},
		{
			Name:        "connect_device_by_host",
			Description: "Connect directly to a known host without scanning.",
			InputSchema: objectSchema(map[string]any{
				"name":        stringProp("A name for the device; also used as its identifier."),
				"host":        stringProp("The device IP address or hostname."),
				"device_type": map[string]any{"type": "string", "enum": []string{"airplay", "googlecast"}, "description": "The device family. Defaults to airplay."},
				"protocol":    stringProp("AirPlay credential protocol preference."),
			}, "name", "host"),
		},
		{
			Name:        "disconnect_device",
			Description: "Disconnect from a connected device and release its resources.",
			InputSchema: identifierOnlySchema(),
		},
		{
			Name:        "disconnect_all",
			Description: "Disconnect from every connected device.",
			InputSchema: objectSchema(map[string]any{}),
		},
		{
			Name:        "power_on",
			Description: "Turn the device on (best effort on AirPlay, no-op on Google Cast).",
			InputSchema: identifierOnlySchema(),
		},
		{
			Name:        "power_off",
			Description: "Turn the device off. On Google Cast this quits the running app.",
			InputSchema: identifierOnlySchema(),
		},
		{
			Name:        "get_power_state",
			Description: "Report whether the device is on.",
			InputSchema: identifierOnlySchema(),
		},
		{
			Name:        "play",
			Description: "Resume playback on a connected device.",
			InputSchema: identifierOnlySchema(),
		},
		{
			Name:        "pause",
			Description: "Pause playback on a connected device.",
			InputSchema: identifierOnlySchema(),
		},
		{
			Name:        "stop",
			Description: "Stop playback on a connected device.",
			InputSchema: identifierOnlySchema(),
		},
		{
			Name:        "seek",
			Description: "Seek to an absolute position in the current media.",
			InputSchema: objectSchema(map[string]any{
				"identifier": identifierProp,
				"position":   numberProp("Absolute position in seconds."),
			}, "identifier", "position"),
		},
		{
			Name:        "play_url",
			Description: "Play a remote http/https media URL on the device.",
			InputSchema: objectSchema(map[string]any{
				"identifier": identifierProp,
				"url":        stringProp("The http or https media URL."),
				"position":   numberProp("Optional start position in seconds."),
			}, "identifier", "url"),
		},
		{
			Name:        "stream_file",
			Description: "Stream a local media file to the device. Google Cast devices fetch it over a temporary HTTP server; AirPlay devices receive it directly.",
			InputSchema: objectSchema(map[string]any{
				"identifier": identifierProp,
				"path":       stringProp("Absolute path to a local media file (mp3, wav, flac, ogg, mp4, m4a, aac, m4v, mov)."),
			}, "identifier", "path"),
		},
		{
			Name:        "announce",
			Description: "Synthesize speech with piper and play it on the device.",
			InputSchema: objectSchema(map[string]any{
				"identifier": identifierProp,
				"text":       stringProp("The text to speak, up to 4000 characters."),
				"voice":      stringProp("Optional piper voice model name, e.g. en_US-lessac-medium."),
			}, "identifier", "text"),
		},
		{
			Name:        "display_image",
			Description: "Render a still image as a video with ffmpeg and play it on the device.",
			InputSchema: objectSchema(map[string]any{
				"identifier": identifierProp,
				"image_path": stringProp("Absolute path to a local image (png, jpg, jpeg, bmp, gif, webp)."),
				"duration": map[string]any{
					"type":        "integer",
					"default":     defaultDisplaySeconds,
					"description": "Display duration in seconds, clamped to [1, 86400].",
				},
			}, "identifier", "image_path"),
		},
		{
			Name:        "set_volume",
			Description: "Set the device volume to an absolute level.",
			InputSchema: objectSchema(map[string]any{
				"identifier": identifierProp,
				"volume":     numberProp("Volume level between 0.0 and 1.0."),
			}, "identifier", "volume"),
		},
		{
			Name:        "get_volume",
			Description: "Read the current device volume.",
			InputSchema: identifierOnlySchema(),
		},
		{
			Name:        "volume_up",
			Description: "Raise the volume by a step, clamped at 1.0.",
			InputSchema: objectSchema(map[string]any{
				"identifier": identifierProp,
				"delta": map[string]any{
					"type":        "number",
					"default":     defaultVolumeStep,
					"description": "Step size, greater than 0.0 and at most 1.0.",
				},
			}, "identifier"),
		},
		{
			Name:        "volume_down",
			Description: "Lower the volume by a step, clamped at 0.0.",
			InputSchema: objectSchema(map[string]any{
				"identifier": identifierProp,
				"delta": map[string]any{
					"type":        "number",
					"default":     defaultVolumeStep,
					"description": "Step size, greater than 0.0 and at most 1.0.",
				},
			}, "identifier"),
		},
		{
			Name:        "now_playing",
			Description: "Report what is currently playing on the device.",
			InputSchema: identifierOnlySchema(),
		},
		{
			Name:        "send_key",
			Description: "Press a remote-control key on an AirPlay device (up, down, left, right, select, menu, home, play, pause, play_pause, next, previous).",
			InputSchema: objectSchema(map[string]any{
				"identifier": identifierProp,
				"key":        stringProp("The key name."),
			}, "identifier", "key"),
		},
		{
			Name:        "pair_device",
			Description: "Start a pairing handshake with an AirPlay device. If the device shows a PIN, finish with 'pair_device_with_pin'.",
			InputSchema: objectSchema(map[string]any{
				"identifier": identifierProp,
				"address":    stringProp("The device IP address."),
				"name":       stringProp("Optional friendly name for logs."),
				"protocol": map[string]any{
					"type":        "string",
					"enum":        []string{"AirPlay", "Companion"},
					"default":     string(defaultPairingProtocol),
					"description": "The pairing protocol. Apple TV remote features pair over Companion.",
				},
			}, "identifier", "address"),
		},
		{
			Name:        "pair_device_with_pin",
			Description: "Finish a pairing handshake with the PIN shown on the device. Credentials are persisted on success.",
			InputSchema: objectSchema(map[string]any{
				"identifier": identifierProp,
				"pin":        stringProp("The PIN displayed on the device."),
				"protocol": map[string]any{
					"type":        "string",
					"enum":        []string{"AirPlay", "Companion"},
					"default":     string(defaultPairingProtocol),
					"description": "The protocol the pairing session was started with.",
				},
			}, "identifier", "pin"),
		},
	}
}
