// Package fileserver exposes exactly one local file over HTTP so a
// pull-protocol receiver can fetch it from the LAN.
package fileserver

import (
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/h2non/filetype"
	"go2tv.app/go2tv/v2/utils"
)

const copyBufferSize = 64 * 1024

// listenAddressForDevice resolves the local ip:port that routes to the
// receiver, so the listener never lands on loopback. Seam for tests.
var listenAddressForDevice = utils.URLtoListenIPandPort

type Server struct {
	port int
	logf func(format string, args ...any)

	mu       sync.Mutex
	listener net.Listener
	httpSrv  *http.Server
	filePath string
	// routePath is the decoded route matched against r.URL.Path;
	// escapedRoute is the percent-encoded form used in the served URL.
	routePath    string
	escapedRoute string
}

// NewServer builds a stopped server. port 0 picks an ephemeral port.
func NewServer(port int, logf func(format string, args ...any)) *Server {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Server{port: port, logf: logf}
}

// Serve starts exposing path at a route derived from its base name and
// returns the full URL. One file at a time: a second Serve call while a
// session is active replaces the previous one.
func (s *Server) Serve(deviceAddress, path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdownLocked()

	listenAddr, err := listenAddressForDevice(deviceURL(deviceAddress))
	if err != nil {
		return "", fmt.Errorf("select media listen address: %w", err)
	}
	host, _, err := net.SplitHostPort(listenAddr)
	if err != nil {
		host = listenAddr
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(s.port)))
	if err != nil {
		return "", fmt.Errorf("bind media listener: %w", err)
	}

	base := filepath.Base(path)
	s.listener = listener
	s.filePath = path
	s.routePath = "/media/" + base
	s.escapedRoute = "/media/" + url.PathEscape(base)
	s.httpSrv = &http.Server{Handler: http.HandlerFunc(s.handle)}
	go func(srv *http.Server, ln net.Listener) {
		_ = srv.Serve(ln)
	}(s.httpSrv, listener)

	served := "http://" + listener.Addr().String() + s.escapedRoute
	s.logf("file server started at %s", served)
	return served, nil
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	route := s.routePath
	path := s.filePath
	s.mu.Unlock()

	// r.URL.Path arrives percent-decoded, so match the decoded route.
	if route == "" || r.URL.Path != route {
		http.NotFound(w, r)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", ContentTypeFor(path))
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.WriteHeader(http.StatusOK)

	// Chunked copy keeps memory bounded regardless of file size.
	buf := make([]byte, copyBufferSize)
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return
			}
		}
		if readErr != nil {
			return
		}
	}
}

// Shutdown stops the listener and clears the served-file mapping. Safe
// to call when nothing is being served.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdownLocked()
}

func (s *Server) shutdownLocked() {
	if s.httpSrv != nil {
		_ = s.httpSrv.Close()
		s.logf("file server stopped")
	}
	s.httpSrv = nil
	s.listener = nil
	s.filePath = ""
	s.routePath = ""
	s.escapedRoute = ""
}

// ContentTypeFor sniffs the MIME type of a local media file.
func ContentTypeFor(path string) string {
	if kind, err := filetype.MatchFile(path); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	if guessed := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); guessed != "" {
		if base, _, found := strings.Cut(guessed, ";"); found {
			return strings.TrimSpace(base)
		}
		return guessed
	}
	return "application/octet-stream"
}

func deviceURL(deviceAddress string) string {
	deviceAddress = strings.TrimSpace(deviceAddress)
	if strings.Contains(deviceAddress, "://") {
		return deviceAddress
	}
	return "http://" + deviceAddress + "/"
}
