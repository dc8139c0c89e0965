package mcpserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alex/castmasta/internal/agent"
	"github.com/alex/castmasta/internal/domain"
	"github.com/alex/castmasta/internal/pairing"
)

type fakeController struct {
	scanTimeout time.Duration
	devices     []domain.DiscoveredDevice

	connectIdentifier string
	connectAddress    string
	connectOpts       agent.ConnectOptions
	connectErr        error

	setVolumeIdentifier string
	setVolumeLevel      float64
	setVolumeErr        error

	volumeUpDelta float64

	sentKey    domain.Key
	sendKeyErr error

	displayDuration int

	pairProtocol domain.PairingProtocol
	pairResult   pairing.BeginResult

	playedCalls []string
}

func (f *fakeController) Scan(_ context.Context, timeout time.Duration) []domain.DiscoveredDevice {
	f.scanTimeout = timeout
	return f.devices
}

func (f *fakeController) Connect(_ context.Context, identifier, address, _ string, opts agent.ConnectOptions) error {
	f.connectIdentifier = identifier
	f.connectAddress = address
	f.connectOpts = opts
	return f.connectErr
}

func (f *fakeController) ConnectByName(_ context.Context, name string, _ agent.ConnectOptions) (string, error) {
	return "id-for-" + name, nil
}

func (f *fakeController) ConnectByHost(_ context.Context, name, _ string, _ agent.ConnectOptions) (string, error) {
	return name, nil
}

func (f *fakeController) Disconnect(context.Context, string) error { return nil }
func (f *fakeController) DisconnectAll(context.Context) error      { return nil }

func (f *fakeController) Play(_ context.Context, identifier string) error {
	f.playedCalls = append(f.playedCalls, identifier)
	return nil
}
func (f *fakeController) Pause(context.Context, string) error { return nil }
func (f *fakeController) Stop(context.Context, string) error  { return nil }
func (f *fakeController) Seek(context.Context, string, float64) error {
	return nil
}
func (f *fakeController) PlayURL(context.Context, string, string, float64) error { return nil }
func (f *fakeController) StreamFile(context.Context, string, string) error       { return nil }
func (f *fakeController) Announce(context.Context, string, string, string) error { return nil }
func (f *fakeController) DisplayImage(_ context.Context, _, _ string, durationSeconds int) error {
	f.displayDuration = durationSeconds
	return nil
}

func (f *fakeController) SetVolume(_ context.Context, identifier string, volume float64) error {
	f.setVolumeIdentifier = identifier
	f.setVolumeLevel = volume
	return f.setVolumeErr
}

func (f *fakeController) GetVolume(context.Context, string) (float64, error) { return 0.4, nil }

func (f *fakeController) VolumeUp(_ context.Context, _ string, delta float64) error {
	f.volumeUpDelta = delta
	return nil
}
func (f *fakeController) VolumeDown(context.Context, string, float64) error { return nil }

func (f *fakeController) NowPlaying(context.Context, string) (domain.NowPlaying, error) {
	return domain.NowPlaying{DeviceState: "playing", Title: "Song"}, nil
}

func (f *fakeController) PowerOn(context.Context, string) error  { return nil }
func (f *fakeController) PowerOff(context.Context, string) error { return nil }
func (f *fakeController) GetPowerState(context.Context, string) (bool, error) {
	return true, nil
}

func (f *fakeController) SendKey(_ context.Context, _ string, key domain.Key) error {
	f.sentKey = key
	return f.sendKeyErr
}

func (f *fakeController) Pair(_ context.Context, _, _, _ string, protocol domain.PairingProtocol) (pairing.BeginResult, error) {
	f.pairProtocol = protocol
	return f.pairResult, nil
}

func (f *fakeController) PairWithPIN(context.Context, string, domain.PairingProtocol, string) (bool, error) {
	return true, nil
}

func TestInitializeAndToolsList(t *testing.T) {
	input := bytes.NewBuffer(nil)
	output := bytes.NewBuffer(nil)

	writeRequest(t, input, map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "initialize",
		"params":  map[string]any{},
	})
	writeRequest(t, input, map[string]any{
		"jsonrpc": "2.0",
		"id":      2,
		"method":  "tools/list",
	})

	srv := New(input, output, Config{ServerName: "castmasta", ServerVersion: "1.0.0-test", Controller: &fakeController{}})
	if err := srv.Run(context.Background()); err != nil {
		t.Fatalf("run server: %v", err)
	}

	responses := readResponses(t, output.Bytes())
	if len(responses) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(responses))
	}

	if responses[0]["id"].(float64) != 1 {
		t.Fatalf("initialize response id mismatch: %#v", responses[0]["id"])
	}
	initResult := responses[0]["result"].(map[string]any)
	if initResult["protocolVersion"].(string) == "" {
		t.Fatal("protocolVersion must not be empty")
	}

	toolResult := responses[1]["result"].(map[string]any)
	tools := toolResult["tools"].([]any)
	if len(tools) != 25 {
		t.Fatalf("expected 25 tools, got %d", len(tools))
	}

	srv2 := New(bytes.NewBuffer(nil), bytes.NewBuffer(nil), Config{Controller: &fakeController{}})
	for _, raw := range tools {
		name := raw.(map[string]any)["name"].(string)
		if _, ok := srv2.handlers[name]; !ok {
			t.Fatalf("listed tool %q has no handler", name)
		}
	}
}

func TestInitializeJSONLineRequest(t *testing.T) {
	input := bytes.NewBuffer(nil)
	output := bytes.NewBuffer(nil)

	payload, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "initialize",
		"params":  map[string]any{},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	if _, err := input.Write(append(payload, '\n')); err != nil {
		t.Fatalf("write request: %v", err)
	}

	srv := New(input, output, Config{Controller: &fakeController{}})
	if err := srv.Run(context.Background()); err != nil {
		t.Fatalf("run server: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(output.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 response line, got %d", len(lines))
	}

	resp := map[string]any{}
	if err := json.Unmarshal([]byte(lines[0]), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["id"].(float64) != 1 {
		t.Fatalf("initialize response id mismatch: %#v", resp["id"])
	}
}

func TestUnknownMethod(t *testing.T) {
	input := bytes.NewBuffer(nil)
	output := bytes.NewBuffer(nil)

	writeRequest(t, input, map[string]any{
		"jsonrpc": "2.0",
		"id":      "abc",
		"method":  "does/not/exist",
	})

	srv := New(input, output, Config{Controller: &fakeController{}})
	if err := srv.Run(context.Background()); err != nil {
		t.Fatalf("run server: %v", err)
	}

	responses := readResponses(t, output.Bytes())
	errObj := responses[0]["error"].(map[string]any)
	if errObj["code"].(float64) != -32601 {
		t.Fatalf("expected -32601, got %v", errObj["code"])
	}
}

func TestInvalidRequestJSONRPCVersion(t *testing.T) {
	input := bytes.NewBuffer(nil)
	output := bytes.NewBuffer(nil)

	writeRequest(t, input, map[string]any{
		"jsonrpc": "1.0",
		"id":      "badver",
		"method":  "tools/list",
	})

	srv := New(input, output, Config{Controller: &fakeController{}})
	if err := srv.Run(context.Background()); err != nil {
		t.Fatalf("run server: %v", err)
	}

	responses := readResponses(t, output.Bytes())
	errObj := responses[0]["error"].(map[string]any)
	if errObj["code"].(float64) != -32600 {
		t.Fatalf("expected -32600, got %v", errObj["code"])
	}
}

func TestToolsCallScanDevices(t *testing.T) {
	input := bytes.NewBuffer(nil)
	output := bytes.NewBuffer(nil)
	controller := &fakeController{
		devices: []domain.DiscoveredDevice{
			{Name: "Living Room", Address: "192.168.1.10", Identifier: "aa:bb", DeviceType: domain.DeviceTypeAirPlay},
			{Name: "Kitchen", Address: "192.168.1.20", Identifier: "uuid-1", DeviceType: domain.DeviceTypeGoogleCast},
		},
	}

	writeRequest(t, input, map[string]any{
		"jsonrpc": "2.0",
		"id":      3,
		"method":  "tools/call",
		"params": map[string]any{
			"name": "scan_devices",
			"arguments": map[string]any{
				"timeout": 5,
			},
		},
	})

	srv := New(input, output, Config{Controller: controller})
	if err := srv.Run(context.Background()); err != nil {
		t.Fatalf("run server: %v", err)
	}

	responses := readResponses(t, output.Bytes())
	result := responses[0]["result"].(map[string]any)
	structured := result["structuredContent"].(map[string]any)
	if structured["count"].(float64) != 2 {
		t.Fatalf("count = %v, want 2", structured["count"])
	}
	devices := structured["devices"].([]any)
	if len(devices) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(devices))
	}
	if controller.scanTimeout != 5*time.Second {
		t.Fatalf("scan timeout = %v, want 5s", controller.scanTimeout)
	}
}

func TestToolsCallScanDevicesFlattenedArguments(t *testing.T) {
	input := bytes.NewBuffer(nil)
	output := bytes.NewBuffer(nil)
	controller := &fakeController{}

	writeRequest(t, input, map[string]any{
		"jsonrpc": "2.0",
		"id":      30,
		"method":  "tools/call",
		"params": map[string]any{
			"name":    "scan_devices",
			"timeout": 7,
			"_meta": map[string]any{
				"progressToken": "tok_1",
			},
		},
	})

	srv := New(input, output, Config{Controller: controller})
	if err := srv.Run(context.Background()); err != nil {
		t.Fatalf("run server: %v", err)
	}

	responses := readResponses(t, output.Bytes())
	if responses[0]["error"] != nil {
		t.Fatalf("expected successful tools/call, got error: %#v", responses[0]["error"])
	}
	if controller.scanTimeout != 7*time.Second {
		t.Fatalf("scan timeout = %v, want 7s", controller.scanTimeout)
	}
}

func TestToolsCallConnectDevice(t *testing.T) {
	input := bytes.NewBuffer(nil)
	output := bytes.NewBuffer(nil)
	controller := &fakeController{}

	writeRequest(t, input, map[string]any{
		"jsonrpc": "2.0",
		"id":      4,
		"method":  "tools/call",
		"params": map[string]any{
			"name": "connect_device",
			"arguments": map[string]any{
				"identifier":  "uuid-1",
				"address":     "192.168.1.20",
				"device_type": "googlecast",
			},
		},
	})

	srv := New(input, output, Config{Controller: controller})
	if err := srv.Run(context.Background()); err != nil {
		t.Fatalf("run server: %v", err)
	}

	responses := readResponses(t, output.Bytes())
	if responses[0]["error"] != nil {
		t.Fatalf("unexpected error: %#v", responses[0]["error"])
	}
	if controller.connectIdentifier != "uuid-1" || controller.connectAddress != "192.168.1.20" {
		t.Fatalf("forwarded (%s, %s)", controller.connectIdentifier, controller.connectAddress)
	}
	if controller.connectOpts.DeviceType != domain.DeviceTypeGoogleCast {
		t.Fatalf("device type = %q", controller.connectOpts.DeviceType)
	}
}

func TestToolsCallConnectDeviceMissingAddress(t *testing.T) {
	input := bytes.NewBuffer(nil)
	output := bytes.NewBuffer(nil)

	writeRequest(t, input, map[string]any{
		"jsonrpc": "2.0",
		"id":      5,
		"method":  "tools/call",
		"params": map[string]any{
			"name": "connect_device",
			"arguments": map[string]any{
				"identifier": "uuid-1",
			},
		},
	})

	srv := New(input, output, Config{Controller: &fakeController{}})
	if err := srv.Run(context.Background()); err != nil {
		t.Fatalf("run server: %v", err)
	}

	responses := readResponses(t, output.Bytes())
	errObj := responses[0]["error"].(map[string]any)
	if errObj["code"].(float64) != -32602 {
		t.Fatalf("expected -32602, got %v", errObj["code"])
	}
}

func TestToolsCallSetVolume(t *testing.T) {
	input := bytes.NewBuffer(nil)
	output := bytes.NewBuffer(nil)
	controller := &fakeController{}

	writeRequest(t, input, map[string]any{
		"jsonrpc": "2.0",
		"id":      6,
		"method":  "tools/call",
		"params": map[string]any{
			"name": "set_volume",
			"arguments": map[string]any{
				"identifier": "atv",
				"volume":     0.7,
			},
		},
	})

	srv := New(input, output, Config{Controller: controller})
	if err := srv.Run(context.Background()); err != nil {
		t.Fatalf("run server: %v", err)
	}

	responses := readResponses(t, output.Bytes())
	if responses[0]["error"] != nil {
		t.Fatalf("unexpected error: %#v", responses[0]["error"])
	}
	if controller.setVolumeIdentifier != "atv" || controller.setVolumeLevel != 0.7 {
		t.Fatalf("forwarded (%s, %v)", controller.setVolumeIdentifier, controller.setVolumeLevel)
	}
}

func TestToolsCallDomainErrorBecomesToolError(t *testing.T) {
	input := bytes.NewBuffer(nil)
	output := bytes.NewBuffer(nil)
	controller := &fakeController{
		setVolumeErr: domain.InvalidArgument("volume must be between 0.0 and 1.0, got 1.5"),
	}

	writeRequest(t, input, map[string]any{
		"jsonrpc": "2.0",
		"id":      7,
		"method":  "tools/call",
		"params": map[string]any{
			"name": "set_volume",
			"arguments": map[string]any{
				"identifier": "atv",
				"volume":     1.5,
			},
		},
	})

	srv := New(input, output, Config{Controller: controller})
	if err := srv.Run(context.Background()); err != nil {
		t.Fatalf("run server: %v", err)
	}

	responses := readResponses(t, output.Bytes())
	result := responses[0]["result"].(map[string]any)
	if !result["isError"].(bool) {
		t.Fatal("expected isError=true")
	}
	structured := result["structuredContent"].(map[string]any)
	errObj := structured["error"].(map[string]any)
	if errObj["code"].(string) != domain.CodeInvalidArgument {
		t.Fatalf("unexpected error code: %v", errObj["code"])
	}
	if !strings.Contains(errObj["message"].(string), "0.0 and 1.0") {
		t.Fatalf("message %q does not mention the valid range", errObj["message"])
	}
}

func TestToolsCallSendKeyUnsupportedDetails(t *testing.T) {
	input := bytes.NewBuffer(nil)
	output := bytes.NewBuffer(nil)
	controller := &fakeController{
		sendKeyErr: domain.UnsupportedOperation("send_key is not supported on Google Cast devices"),
	}

	writeRequest(t, input, map[string]any{
		"jsonrpc": "2.0",
		"id":      8,
		"method":  "tools/call",
		"params": map[string]any{
			"name": "send_key",
			"arguments": map[string]any{
				"identifier": "uuid-1",
				"key":        "select",
			},
		},
	})

	srv := New(input, output, Config{Controller: controller})
	if err := srv.Run(context.Background()); err != nil {
		t.Fatalf("run server: %v", err)
	}

	responses := readResponses(t, output.Bytes())
	result := responses[0]["result"].(map[string]any)
	if !result["isError"].(bool) {
		t.Fatal("expected isError=true")
	}
	structured := result["structuredContent"].(map[string]any)
	errObj := structured["error"].(map[string]any)
	if errObj["code"].(string) != domain.CodeUnsupportedOperation {
		t.Fatalf("unexpected error code: %v", errObj["code"])
	}
}

func TestToolsCallExternalToolFailureKeepsDetails(t *testing.T) {
	input := bytes.NewBuffer(nil)
	output := bytes.NewBuffer(nil)
	controller := &fakeController{
		setVolumeErr: domain.ExternalToolFailure("piper", 2, "voice model missing"),
	}

	writeRequest(t, input, map[string]any{
		"jsonrpc": "2.0",
		"id":      9,
		"method":  "tools/call",
		"params": map[string]any{
			"name": "set_volume",
			"arguments": map[string]any{
				"identifier": "atv",
				"volume":     0.5,
			},
		},
	})

	srv := New(input, output, Config{Controller: controller})
	if err := srv.Run(context.Background()); err != nil {
		t.Fatalf("run server: %v", err)
	}

	responses := readResponses(t, output.Bytes())
	result := responses[0]["result"].(map[string]any)
	structured := result["structuredContent"].(map[string]any)
	errObj := structured["error"].(map[string]any)
	details := errObj["details"].(map[string]any)
	if details["stderr"].(string) != "voice model missing" {
		t.Fatalf("stderr detail = %v", details["stderr"])
	}
}

func TestToolsCallUnknownTool(t *testing.T) {
	input := bytes.NewBuffer(nil)
	output := bytes.NewBuffer(nil)

	writeRequest(t, input, map[string]any{
		"jsonrpc": "2.0",
		"id":      10,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      "beam_media",
			"arguments": map[string]any{},
		},
	})

	srv := New(input, output, Config{Controller: &fakeController{}})
	if err := srv.Run(context.Background()); err != nil {
		t.Fatalf("run server: %v", err)
	}

	responses := readResponses(t, output.Bytes())
	result := responses[0]["result"].(map[string]any)
	if !result["isError"].(bool) {
		t.Fatal("expected isError=true")
	}
	structured := result["structuredContent"].(map[string]any)
	errObj := structured["error"].(map[string]any)
	if errObj["code"].(string) != "TOOL_NOT_FOUND" {
		t.Fatalf("unexpected error code: %v", errObj["code"])
	}
}

func TestToolsCallPairDeviceDefaultsProtocol(t *testing.T) {
	input := bytes.NewBuffer(nil)
	output := bytes.NewBuffer(nil)
	controller := &fakeController{
		pairResult: pairing.BeginResult{Status: "ready", Message: "PIN required - use pair_with_pin method"},
	}

	writeRequest(t, input, map[string]any{
		"jsonrpc": "2.0",
		"id":      11,
		"method":  "tools/call",
		"params": map[string]any{
			"name": "pair_device",
			"arguments": map[string]any{
				"identifier": "atv",
				"address":    "192.168.1.10",
			},
		},
	})

	srv := New(input, output, Config{Controller: controller})
	if err := srv.Run(context.Background()); err != nil {
		t.Fatalf("run server: %v", err)
	}

	responses := readResponses(t, output.Bytes())
	if responses[0]["error"] != nil {
		t.Fatalf("unexpected error: %#v", responses[0]["error"])
	}
	if controller.pairProtocol != domain.ProtocolAirPlay {
		t.Fatalf("protocol = %q, want AirPlay default", controller.pairProtocol)
	}
	result := responses[0]["result"].(map[string]any)
	structured := result["structuredContent"].(map[string]any)
	if structured["status"].(string) != "ready" {
		t.Fatalf("status = %v", structured["status"])
	}
}

func TestToolsCallVolumeUpDefaultsDelta(t *testing.T) {
	input := bytes.NewBuffer(nil)
	output := bytes.NewBuffer(nil)
	controller := &fakeController{}

	writeRequest(t, input, map[string]any{
		"jsonrpc": "2.0",
		"id":      12,
		"method":  "tools/call",
		"params": map[string]any{
			"name": "volume_up",
			"arguments": map[string]any{
				"identifier": "atv",
			},
		},
	})

	srv := New(input, output, Config{Controller: controller})
	if err := srv.Run(context.Background()); err != nil {
		t.Fatalf("run server: %v", err)
	}

	responses := readResponses(t, output.Bytes())
	if responses[0]["error"] != nil {
		t.Fatalf("unexpected error: %#v", responses[0]["error"])
	}
	if controller.volumeUpDelta != defaultVolumeStep {
		t.Fatalf("delta = %v, want %v", controller.volumeUpDelta, defaultVolumeStep)
	}
}

func TestToolsCallDisplayImageDefaultsDuration(t *testing.T) {
	input := bytes.NewBuffer(nil)
	output := bytes.NewBuffer(nil)
	controller := &fakeController{}

	writeRequest(t, input, map[string]any{
		"jsonrpc": "2.0",
		"id":      14,
		"method":  "tools/call",
		"params": map[string]any{
			"name": "display_image",
			"arguments": map[string]any{
				"identifier": "atv",
				"image_path": "/tmp/pic.png",
			},
		},
	})

	srv := New(input, output, Config{Controller: controller})
	if err := srv.Run(context.Background()); err != nil {
		t.Fatalf("run server: %v", err)
	}

	responses := readResponses(t, output.Bytes())
	if responses[0]["error"] != nil {
		t.Fatalf("unexpected error: %#v", responses[0]["error"])
	}
	if controller.displayDuration != 3600 {
		t.Fatalf("duration = %d, want 3600", controller.displayDuration)
	}
}

func TestToolsCallStructuredLog(t *testing.T) {
	input := bytes.NewBuffer(nil)
	output := bytes.NewBuffer(nil)
	logOutput := bytes.NewBuffer(nil)
	logger := slog.New(slog.NewJSONHandler(logOutput, nil))

	writeRequest(t, input, map[string]any{
		"jsonrpc": "2.0",
		"id":      13,
		"method":  "tools/call",
		"params": map[string]any{
			"name": "play",
			"arguments": map[string]any{
				"identifier": "atv",
			},
		},
	})

	srv := New(input, output, Config{Controller: &fakeController{}, Logger: logger})
	if err := srv.Run(context.Background()); err != nil {
		t.Fatalf("run server: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(logOutput.String()), "\n")
	var logEntry map[string]any
	for _, line := range lines {
		candidate := map[string]any{}
		if err := json.Unmarshal([]byte(line), &candidate); err != nil {
			t.Fatalf("unmarshal log line: %v", err)
		}
		if candidate["msg"] == "mcp_call" {
			logEntry = candidate
			break
		}
	}
	if len(logEntry) == 0 {
		t.Fatalf("missing mcp_call log entry; got %d total log line(s)", len(lines))
	}

	if logEntry["level"] != "INFO" {
		t.Fatalf("expected INFO level, got %v", logEntry["level"])
	}
	if logEntry["method"] != "play" {
		t.Fatalf("unexpected method: %v", logEntry["method"])
	}
	if logEntry["device_id"] != "atv" {
		t.Fatalf("unexpected device_id: %v", logEntry["device_id"])
	}
	if _, ok := logEntry["duration_ms"]; !ok {
		t.Fatal("expected duration_ms field")
	}
	if logEntry["error_code"] != "" {
		t.Fatalf("expected empty error_code, got %v", logEntry["error_code"])
	}
}

func TestDecodeStrictRejectsTrailingJSON(t *testing.T) {
	var payload struct {
		Value string `json:"value"`
	}

	err := decodeStrict(json.RawMessage(`{"value":"ok"}{"value":"extra"}`), &payload)
	if err == nil {
		t.Fatal("expected error for trailing JSON payload")
	}
}

func writeRequest(t *testing.T, w io.Writer, req map[string]any) {
	t.Helper()

	payload, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	if _, err := w.Write([]byte("Content-Length: ")); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if _, err := w.Write([]byte(strconv.Itoa(len(payload)))); err != nil {
		t.Fatalf("write length: %v", err)
	}
	if _, err := w.Write([]byte("\r\n\r\n")); err != nil {
		t.Fatalf("write separator: %v", err)
	}
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("write payload: %v", err)
	}
}

func readResponses(t *testing.T, output []byte) []map[string]any {
	t.Helper()

	reader := bufio.NewReader(bytes.NewReader(output))
	var responses []map[string]any
	for {
		msg, _, err := readMessage(reader)
		if err != nil {
			if err == io.EOF {
				break
			}
			t.Fatalf("read response: %v", err)
		}

		resp := map[string]any{}
		if err := json.Unmarshal(msg, &resp); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		responses = append(responses, resp)
	}

	return responses
}
