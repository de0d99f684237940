// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package stats serves a live plot of session counters.
package stats

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/logging"
)

const (
	clientQueue   = 64
	writeWait     = 5 * time.Second
	shutdownGrace = 2 * time.Second
)

// DataPoint represents a single data point for visualization.
type DataPoint struct {
	Label     string
	Timestamp int64 // milliseconds after the server was created
	Value     float64
}

// Option configures a Server.
type Option func(*Server) error

// SetLoggerFactory sets the logger factory used by the server.
func SetLoggerFactory(loggerFactory logging.LoggerFactory) Option {
	return func(s *Server) error {
		s.log = loggerFactory.NewLogger("stats")

		return nil
	}
}

// Server pushes data points to every connected plot page.
type Server struct {
	upgrader *websocket.Upgrader
	start    time.Time

	mu      sync.Mutex
	clients map[chan DataPoint]struct{}
	dropped uint64

	log logging.LeveledLogger
}

// New creates a new statistics server.
func New(opts ...Option) (*Server, error) {
	s := &Server{
		upgrader: &websocket.Upgrader{},
		start:    time.Now(),
		clients:  make(map[chan DataPoint]struct{}),
		log:      logging.NewDefaultLoggerFactory().NewLogger("stats"),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Add broadcasts d to connected clients. Clients that fall behind miss
// points rather than stall the caller.
func (s *Server) Add(d DataPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for c := range s.clients {
		select {
		case c <- d:
		default:
			s.dropped++
		}
	}
}

// Record adds a value for label stamped with the time since creation.
func (s *Server) Record(label string, value float64) {
	s.Add(DataPoint{Label: label, Timestamp: time.Since(s.start).Milliseconds(), Value: value})
}

// Clients returns the number of connected plot pages.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.clients)
}

// Handler returns the HTTP handler serving the page and the update socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.home)
	mux.HandleFunc("/update", s.update)

	return mux
}

// Start serves on addr until ctx is done.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: writeWait}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warnf("stats shutdown: %v", err)
		}
	}()

	s.log.Infof("stats listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *Server) subscribe() chan DataPoint {
	c := make(chan DataPoint, clientQueue)
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	return c
}

func (s *Server) unsubscribe(c chan DataPoint) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("s.upgrader.Upgrade: %v", err)

		return
	}
	defer func() {
		if err = wsConn.Close(); err != nil {
			s.log.Debugf("failed to close websocket connection: %v", err)
		}
	}()

	points := s.subscribe()
	defer s.unsubscribe(points)

	// The page never writes; a read error means it went away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := wsConn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case dataPoint := <-points:
			_ = wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err = wsConn.WriteJSON(dataPoint); err != nil {
				s.log.Errorf("c.WriteJSON: %v", err)

				return
			}
		}
	}
}

//nolint:gochecknoglobals
var homeTemplate = template.Must(template.New("").Parse(`
<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>posecoach</title>
    <script src="https://cdn.plot.ly/plotly-latest.min.js"></script>
  </head>
  <body>
    <div id="graph"></div>
    <script>
      Plotly.newPlot('graph', []);
      var traces = {};

      const socket = new WebSocket("{{.}}");
      socket.onmessage = function(event) {
        const data = JSON.parse(event.data);
        if (!(data.Label in traces)) {
          traces[data.Label] = Object.keys(traces).length;
          Plotly.addTraces('graph', {x: [], y: [], name: data.Label, mode: 'lines', type: 'scatter'});
        }
        Plotly.extendTraces('graph', {
          y: [[data.Value]],
          x: [[data.Timestamp]]
        }, [traces[data.Label]]);
      };
    </script>
  </body>
</html>
`))

func (s *Server) home(respWriter http.ResponseWriter, req *http.Request) {
	if req.URL.Path != "/" {
		http.NotFound(respWriter, req)

		return
	}

	if err := homeTemplate.Execute(respWriter, "ws://"+req.Host+"/update"); err != nil {
		s.log.Errorf("failed to execute template: %v", err)
		http.Error(respWriter, "Internal server error", http.StatusInternalServerError)
	}
}
