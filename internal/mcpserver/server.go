// Package mcpserver speaks MCP JSON-RPC over stdio and maps the tool
// surface onto the orchestration agent. Both Content-Length framing
// and JSON-line transports are accepted; the reply transport mirrors
// whichever the client used first.
package mcpserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/alex/castmasta/internal/agent"
	"github.com/alex/castmasta/internal/domain"
	"github.com/alex/castmasta/internal/pairing"
)

const protocolVersion = "2024-11-05"

const (
	defaultScanTimeoutSeconds = 10.0
	defaultVolumeStep         = 0.1
	defaultDisplaySeconds     = 3600
	defaultPairingProtocol    = domain.ProtocolAirPlay
)

// Controller is the agent surface the tool handlers call into.
type Controller interface {
	Scan(ctx context.Context, timeout time.Duration) []domain.DiscoveredDevice
	Connect(ctx context.Context, identifier, address, name string, opts agent.ConnectOptions) error
	ConnectByName(ctx context.Context, name string, opts agent.ConnectOptions) (string, error)
	ConnectByHost(ctx context.Context, name, host string, opts agent.ConnectOptions) (string, error)
	Disconnect(ctx context.Context, identifier string) error
	DisconnectAll(ctx context.Context) error

	Play(ctx context.Context, identifier string) error
	Pause(ctx context.Context, identifier string) error
	Stop(ctx context.Context, identifier string) error
	Seek(ctx context.Context, identifier string, position float64) error
	PlayURL(ctx context.Context, identifier, mediaURL string, position float64) error
	StreamFile(ctx context.Context, identifier, path string) error

	Announce(ctx context.Context, identifier, text, voice string) error
	DisplayImage(ctx context.Context, identifier, imagePath string, durationSeconds int) error

	SetVolume(ctx context.Context, identifier string, volume float64) error
	GetVolume(ctx context.Context, identifier string) (float64, error)
	VolumeUp(ctx context.Context, identifier string, delta float64) error
	VolumeDown(ctx context.Context, identifier string, delta float64) error

	NowPlaying(ctx context.Context, identifier string) (domain.NowPlaying, error)

	PowerOn(ctx context.Context, identifier string) error
	PowerOff(ctx context.Context, identifier string) error
	GetPowerState(ctx context.Context, identifier string) (bool, error)

	SendKey(ctx context.Context, identifier string, key domain.Key) error

	Pair(ctx context.Context, identifier, address, name string, protocol domain.PairingProtocol) (pairing.BeginResult, error)
	PairWithPIN(ctx context.Context, identifier string, protocol domain.PairingProtocol, pin string) (bool, error)
}

type toolHandler func(ctx context.Context, id json.RawMessage, rawArgs json.RawMessage) error

type Server struct {
	in                *bufio.Reader
	out               *bufio.Writer
	serverName        string
	serverVersion     string
	logger            *slog.Logger
	useJSONLineOutput bool
	outputModeLocked  bool
	tools             []tool
	controller        Controller
	handlers          map[string]toolHandler
}

type Config struct {
	ServerName    string
	ServerVersion string
	Logger        *slog.Logger
	Controller    Controller
}

func New(in io.Reader, out io.Writer, cfg Config) *Server {
	if cfg.ServerName == "" {
		cfg.ServerName = "castmasta"
	}
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}

	s := &Server{
		in:            bufio.NewReader(in),
		out:           bufio.NewWriter(out),
		serverName:    cfg.ServerName,
		serverVersion: cfg.ServerVersion,
		logger:        cfg.Logger,
		tools:         staticTools(),
		controller:    cfg.Controller,
	}
	s.handlers = s.buildHandlers()
	return s
}

func (s *Server) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.logLifecycle(slog.LevelInfo, "mcp_context_done", slog.String("reason", ctx.Err().Error()))
			return ctx.Err()
		default:
		}

		s.logLifecycle(slog.LevelDebug, "mcp_read_wait")
		payload, jsonLineInput, err := readMessage(s.in)
		if err != nil {
			if err == io.EOF {
				s.logLifecycle(slog.LevelInfo, "mcp_stream_eof")
				return nil
			}
			s.logLifecycle(slog.LevelError, "mcp_read_error", slog.String("error", err.Error()))
			return err
		}
		if !s.outputModeLocked {
			s.useJSONLineOutput = jsonLineInput
			s.outputModeLocked = true
			s.logLifecycle(
				slog.LevelDebug,
				"mcp_output_mode",
				slog.String("mode", map[bool]string{true: "jsonline", false: "framed"}[jsonLineInput]),
			)
		}
		s.logLifecycle(slog.LevelDebug, "mcp_message_received", slog.Int("bytes", len(payload)))

		if err := s.handle(ctx, payload); err != nil {
			s.logLifecycle(slog.LevelError, "mcp_handle_error", slog.String("error", err.Error()))
			return err
		}
	}
}

func (s *Server) handle(ctx context.Context, payload []byte) error {
	startedAt := time.Now()

	var req request
	if err := json.Unmarshal(payload, &req); err != nil {
		s.logCall("parse", "", startedAt, "-32700")
		return s.send(response{
			JSONRPC: "2.0",
			Error: &responseError{
				Code:    -32700,
				Message: "parse error",
			},
		})
	}

	if len(req.ID) == 0 {
		return nil
	}

	if req.JSONRPC != "" && req.JSONRPC != "2.0" {
		s.logCall(req.Method, "", startedAt, "-32600")
		return s.send(response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &responseError{
				Code:    -32600,
				Message: "invalid request",
			},
		})
	}

	switch req.Method {
	case "initialize":
		s.logCall("initialize", "", startedAt, "")
		return s.send(response{JSONRPC: "2.0", ID: req.ID, Result: initializeResult{
			ProtocolVersion: protocolVersion,
			Capabilities: map[string]any{
				"tools": map[string]any{
					"listChanged": false,
				},
			},
			ServerInfo: map[string]string{
				"name":    s.serverName,
				"version": s.serverVersion,
			},
			Instructions: "Use tools/list to inspect available tools. Call scan_devices first, then connect_device before any playback tool.",
		}})
	case "tools/list":
		s.logCall("tools/list", "", startedAt, "")
		return s.send(response{JSONRPC: "2.0", ID: req.ID, Result: toolsListResult{Tools: s.tools}})
	case "tools/call":
		return s.handleToolCall(ctx, req.ID, req.Params)
	default:
		s.logCall(req.Method, "", startedAt, "-32601")
		return s.send(response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &responseError{
				Code:    -32601,
				Message: "method not found",
			},
		})
	}
}

func (s *Server) handleToolCall(ctx context.Context, id json.RawMessage, rawParams json.RawMessage) error {
	startedAt := time.Now()

	params, err := decodeToolCallParams(rawParams)
	if err != nil {
		return s.sendInvalidParams("tools/call", "", startedAt, id)
	}

	if s.controller == nil {
		return s.sendToolInternalError(params.Name, "", startedAt, id, "controller is not configured")
	}

	handler, ok := s.handlers[params.Name]
	if !ok {
		s.logCall(params.Name, "", startedAt, "TOOL_NOT_FOUND")
		return s.send(response{
			JSONRPC: "2.0",
			ID:      id,
			Result: toolErrorResult(
				"TOOL_NOT_FOUND",
				fmt.Sprintf("unknown tool: %s", params.Name),
			),
		})
	}
	return handler(ctx, id, params.Arguments)
}

func decodeStrict(raw json.RawMessage, out any) error {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return err
	}
	if decoder.More() {
		return fmt.Errorf("invalid JSON payload")
	}
	var trailing any
	if err := decoder.Decode(&trailing); err != io.EOF {
		return fmt.Errorf("invalid JSON payload")
	}
	return nil
}

func (s *Server) sendInvalidParams(method, deviceID string, startedAt time.Time, id json.RawMessage) error {
	s.logCall(method, deviceID, startedAt, "-32602")
	return s.send(response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &responseError{
			Code:    -32602,
			Message: "invalid params",
		},
	})
}

func (s *Server) sendToolInternalError(method, deviceID string, startedAt time.Time, id json.RawMessage, message string) error {
	s.logCall(method, deviceID, startedAt, "INTERNAL_ERROR")
	return s.send(response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  toolErrorResult("INTERNAL_ERROR", message),
	})
}

func (s *Server) sendToolError(method, deviceID string, startedAt time.Time, id json.RawMessage, err error) error {
	s.logCall(method, deviceID, startedAt, toolErrorCode(err))
	return s.send(response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  toolErrorResultFromError(err),
	})
}

func (s *Server) sendToolResult(method, deviceID string, startedAt time.Time, id json.RawMessage, text string, structured any) error {
	s.logCall(method, deviceID, startedAt, "")
	return s.send(response{
		JSONRPC: "2.0",
		ID:      id,
		Result: toolCallResult{
			Content:           []toolContent{{Type: "text", Text: text}},
			StructuredContent: structured,
		},
	})
}

func toolErrorResult(code, message string) toolCallResult {
	return toolCallResult{
		Content: []toolContent{
			{
				Type: "text",
				Text: fmt.Sprintf("%s: %s", code, message),
			},
		},
		StructuredContent: map[string]any{
			"error": map[string]string{
				"code":    code,
				"message": message,
			},
		},
		IsError: true,
	}
}

func toolErrorResultFromError(err error) toolCallResult {
	var dErr *domain.Error
	if errors.As(err, &dErr) && dErr != nil {
		result := toolErrorResult(dErr.Code, dErr.Message)
		structured := map[string]any{
			"error": map[string]any{
				"code":    dErr.Code,
				"message": dErr.Message,
			},
		}
		if len(dErr.Details) > 0 {
			structured["error"].(map[string]any)["details"] = dErr.Details
		}
		result.StructuredContent = structured
		return result
	}

	return toolErrorResult("INTERNAL_ERROR", err.Error())
}

func toolErrorCode(err error) string {
	var dErr *domain.Error
	if errors.As(err, &dErr) && dErr != nil && strings.TrimSpace(dErr.Code) != "" {
		return dErr.Code
	}
	return "INTERNAL_ERROR"
}

func (s *Server) logCall(method, deviceID string, startedAt time.Time, errorCode string) {
	if s == nil || s.logger == nil {
		return
	}
	level := slog.LevelInfo
	if strings.TrimSpace(errorCode) != "" {
		level = slog.LevelError
	}

	s.logger.Log(
		context.Background(),
		level,
		"mcp_call",
		slog.String("method", strings.TrimSpace(method)),
		slog.String("device_id", strings.TrimSpace(deviceID)),
		slog.Int64("duration_ms", time.Since(startedAt).Milliseconds()),
		slog.String("error_code", strings.TrimSpace(errorCode)),
	)
}

func (s *Server) send(resp response) error {
	encoded, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	s.logLifecycle(slog.LevelDebug, "mcp_send", slog.Int("bytes", len(encoded)))
	if s.useJSONLineOutput {
		return writeJSONLineMessage(s.out, encoded)
	}
	return writeFramedMessage(s.out, encoded)
}

func (s *Server) logLifecycle(level slog.Level, msg string, attrs ...any) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Log(context.Background(), level, msg, attrs...)
}

func formatDiscoveredDevices(devices []domain.DiscoveredDevice) string {
	var out strings.Builder
	for i, dev := range devices {
		if i > 0 {
			out.WriteByte('\n')
		}
		fmt.Fprintf(
			&out,
			"%d. id=%s name=%s type=%s address=%s",
			i+1,
			strings.TrimSpace(dev.Identifier),
			strings.TrimSpace(dev.Name),
			string(dev.DeviceType),
			strings.TrimSpace(dev.Address),
		)
	}
	return out.String()
}
