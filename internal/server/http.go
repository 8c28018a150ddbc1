package server

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/morezero/void-worker/pkg/protocol"
	"github.com/morezero/void-worker/pkg/transport"
)

const httpLogPrefix = "server:http"

// Reserved paths; everything else is resolved through the router.
const (
	pathHealth = "/health"
	pathReady  = "/ready"
	pathStatus = "/_void/status"
	pathRPC    = "/_void/rpc"
)

// healthChecker reports whether one dependency is usable.
type healthChecker func(ctx context.Context) error

// HealthOutput is the /health body.
type HealthOutput struct {
	Status    string          `json:"status"`
	Checks    map[string]bool `json:"checks"`
	Timestamp string          `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The RPC socket is meant for pages served by this worker and local tools.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newEngine builds the HTTP surface over w.
func (s *Server) newEngine() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		engine.Use(gin.Logger())
	}

	engine.GET(pathHealth, s.handleHealth)
	engine.GET(pathReady, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	engine.GET(pathStatus, s.handleStatus)
	engine.GET(pathRPC, s.handleRPC)
	engine.NoRoute(s.handleResolve)
	return engine
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.HealthCheckTimeout)
	defer cancel()

	out := HealthOutput{Status: "healthy", Checks: map[string]bool{}, Timestamp: time.Now().UTC().Format(time.RFC3339)}
	for name, check := range s.checks {
		err := check(ctx)
		out.Checks[name] = err == nil
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - health check %s failed: %v", httpLogPrefix, name, err))
			out.Status = "unhealthy"
		}
	}
	status := http.StatusOK
	if out.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, out)
}

// handleResolve answers any other request from overrides, the filesystem or the network.
func (s *Server) handleResolve(c *gin.Context) {
	resp := s.worker.Router.Resolve(c.Request.Context(), c.Request)
	slog.Debug(fmt.Sprintf("%s - %s %s -> %d (%s)", httpLogPrefix, c.Request.Method, c.Request.URL, resp.Status, resp.Source))
	resp.Write(c.Writer)
}

// handleRPC upgrades to a WebSocket and serves the command dispatcher on it
// until the client goes away. ?codec=cbor selects binary envelopes.
func (s *Server) handleRPC(c *gin.Context) {
	codec := s.codec
	if name := c.Query("codec"); name != "" {
		var err error
		if codec, err = protocol.CodecByName(name); err != nil {
			c.String(http.StatusBadRequest, err.Error())
			return
		}
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - websocket upgrade failed: %v", httpLogPrefix, err))
		return
	}
	conn := transport.NewWebSocketConn(ws, codec)
	defer conn.Close()

	remote := ws.RemoteAddr().String()
	slog.Info(fmt.Sprintf("%s - RPC client connected from %s (%s)", httpLogPrefix, remote, codec.Name()))
	if err := s.worker.Dispatcher.Serve(s.ctx, conn); err != nil {
		slog.Warn(fmt.Sprintf("%s - RPC session with %s ended: %v", httpLogPrefix, remote, err))
	}
	slog.Info(fmt.Sprintf("%s - RPC client %s disconnected", httpLogPrefix, remote))
}

// statusPageTemplate lists what the worker is serving.
const statusPageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Name}} status</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    h1, h2 { color: #0066cc; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; }
    section { margin-bottom: 2rem; }
  </style>
</head>
<body>
  <h1>{{.Name}}</h1>
  <p class="meta">Protocol {{.Version}} &middot; filesystem {{.Root}} &middot; origin {{if .Origin}}{{.Origin}}{{else}}none{{end}}</p>

  <section>
    <h2>Model</h2>
    <p>{{.Model}} at {{.APIURL}} (up to {{.MaxSteps}} steps per message)</p>
  </section>

  <section>
    <h2>Commands</h2>
    <table>
      <thead><tr><th>Command</th></tr></thead>
      <tbody>
        {{range .Commands}}<tr><td>{{.}}</td></tr>
        {{end}}
      </tbody>
    </table>
  </section>

  <section>
    <h2>Overrides</h2>
    {{if not .Overrides}}
    <p>No overrides installed.</p>
    {{else}}
    <table>
      <thead><tr><th>URL</th></tr></thead>
      <tbody>
        {{range .Overrides}}<tr><td><a href="{{.}}">{{.}}</a></td></tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>
</body>
</html>
`

var statusPage = template.Must(template.New("status").Parse(statusPageTemplate))

type statusData struct {
	Name      string
	Version   string
	Root      string
	Origin    string
	Model     string
	APIURL    string
	MaxSteps  int
	Commands  []string
	Overrides []string
}

func (s *Server) handleStatus(c *gin.Context) {
	cfg := s.worker.Config.Current()
	data := statusData{
		Name:      s.worker.Name,
		Version:   protocol.Version,
		Root:      s.worker.Files.Root(),
		Origin:    s.cfg.OriginURL,
		Model:     cfg.Model,
		APIURL:    cfg.APIURL,
		MaxSteps:  cfg.MaxSteps,
		Commands:  s.worker.Dispatcher.Commands(),
		Overrides: s.worker.Overrides.Keys(),
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)
	if err := statusPage.Execute(c.Writer, data); err != nil {
		slog.Error(fmt.Sprintf("%s - status page render: %v", httpLogPrefix, err))
	}
}
