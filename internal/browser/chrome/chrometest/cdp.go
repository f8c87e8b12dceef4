// Package chrometest has a minimal DevTools endpoint to drive chromedp
// sessions in tests without a real browser.
package chrometest

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

const (
	browserPath = "/devtools/browser/cartpool"
	targetID    = "TARGET1"
	sessionID   = "SESSION1"
)

// Call is a command received by the server.
type Call struct {
	SessionID string
	Method    string
	Params    json.RawMessage
}

type message struct {
	ID        int64           `json:"id,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// Server answers the commands chromedp sends to open a single page and
// run actions on it.
type Server struct {
	srv            *httptest.Server
	onBrowserClose func()

	mu    sync.Mutex
	calls []Call
	conns int
}

// NewServer starts a server, onBrowserClose is called when the browser is
// asked to close and can be nil.
func NewServer(t *testing.T, onBrowserClose func()) *Server {
	t.Helper()

	s := &Server{onBrowserClose: onBrowserClose}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

// Port is the server TCP port.
func (s *Server) Port() string {
	_, port, _ := net.SplitHostPort(strings.TrimPrefix(s.srv.URL, "http://"))
	return port
}

// WebSocketURL is the browser DevTools websocket URL.
func (s *Server) WebSocketURL() string {
	return "ws://" + strings.TrimPrefix(s.srv.URL, "http://") + browserPath
}

// Calls returns the received commands with the method.
func (s *Server) Calls(method string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()

	var calls []Call
	for _, c := range s.calls {
		if c.Method == method {
			calls = append(calls, c)
		}
	}
	return calls
}

// Connections returns the number of open websocket connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/json/version":
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"Browser":              "HeadlessChrome/cartpool",
			"webSocketDebuggerUrl": s.WebSocketURL(),
		})
	case browserPath:
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		s.serve(conn)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer conn.Close()

	s.mu.Lock()
	s.conns++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.conns--
		s.mu.Unlock()
	}()

	write := func(m message) error {
		b, err := json.Marshal(m)
		if err != nil {
			return err
		}
		return wsutil.WriteServerMessage(conn, ws.OpText, b)
	}

	announced := false
	for {
		data, _, err := wsutil.ReadClientData(conn)
		if err != nil {
			return
		}

		var req message
		if err := json.Unmarshal(data, &req); err != nil {
			return
		}
		s.mu.Lock()
		s.calls = append(s.calls, Call{SessionID: req.SessionID, Method: req.Method, Params: req.Params})
		s.mu.Unlock()

		result := `{}`
		switch req.Method {
		case "Target.createTarget":
			result = fmt.Sprintf(`{"targetId":%q}`, targetID)
		case "Target.attachToTarget":
			result = fmt.Sprintf(`{"sessionId":%q}`, sessionID)
		case "Runtime.evaluate":
			result = `{"result":{"type":"object","className":"Window"}}`
		}

		if err := write(message{ID: req.ID, SessionID: req.SessionID, Result: json.RawMessage(result)}); err != nil {
			return
		}

		switch {
		// A browser started by chromedp waits for its first page to show up.
		case req.Method == "Target.setDiscoverTargets" && req.SessionID == "" && !announced:
			announced = true
			ev := fmt.Sprintf(`{"targetInfo":{"targetId":%q,"type":"page","title":"","url":"about:blank","attached":false,"canAccessOpener":false}}`, targetID)
			if err := write(message{Method: "Target.targetCreated", Params: json.RawMessage(ev)}); err != nil {
				return
			}
		case req.Method == "Browser.close":
			if s.onBrowserClose != nil {
				s.onBrowserClose()
			}
			return
		}
	}
}
