// Package feed is the ADDED admin observability WebSocket stream named in
// SPEC_FULL.md's domain-stack wiring: a read-only broadcast of
// activation.Event values (activated/revoked/renewed/reclaimed/heartbeat)
// to connected admin consoles. It implements activation.EventSink.
//
// Grounded on the teacher's internal/hub: the same single-event-loop
// register/unregister/broadcast design, stripped of voice state, the
// mediasoup bridge, and per-user addressing — nothing here needs to target
// one specific connection, since every admin connection wants every event.
package feed

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/clk-66/licensecore/internal/activation"
)

// Feed maintains the set of connected admin WebSocket clients and fans
// activation.Event values out to all of them. Registration/unregistration
// and broadcasting happen on the single Run() goroutine — no locks needed.
type Feed struct {
	upgrader websocket.Upgrader

	clients    map[*client]struct{}
	broadcast  chan activation.Event
	register   chan *client
	unregister chan *client
}

// New returns a Feed whose WebSocket upgrades are restricted to origins
// matching allowedDomain (see makeCheckOrigin), matching the teacher's
// hub.NewHub domain-gating convention.
func New(allowedDomain string) *Feed {
	f := &Feed{
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan activation.Event, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
	f.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     makeCheckOrigin(allowedDomain),
	}
	return f
}

// Publish implements activation.EventSink. It must not block: a full
// broadcast buffer drops the event rather than stalling the engine.
func (f *Feed) Publish(evt activation.Event) {
	select {
	case f.broadcast <- evt:
	default:
		slog.Warn("feed: broadcast buffer full, dropping event", "kind", evt.Kind, "license_id", evt.LicenseID)
	}
}

// Run is the feed's event loop. Call once in a goroutine.
func (f *Feed) Run() {
	for {
		select {
		case c := <-f.register:
			f.clients[c] = struct{}{}
			slog.Info("feed: admin connected", "total", len(f.clients))

		case c := <-f.unregister:
			if _, ok := f.clients[c]; ok {
				delete(f.clients, c)
				close(c.send)
				slog.Info("feed: admin disconnected", "total", len(f.clients))
			}

		case evt := <-f.broadcast:
			for c := range f.clients {
				// A full send buffer means the client is too slow to keep
				// up; Run() drops it inline rather than blocking here, since
				// blocking would stall every other client's broadcast too.
				if !c.sendEvent(evt) {
					delete(f.clients, c)
					close(c.send)
					slog.Warn("feed: admin client too slow, dropping", "total", len(f.clients))
				}
			}
		}
	}
}

// ServeWS upgrades an HTTP connection to WebSocket and registers it to
// receive every subsequent activation.Event.
func (f *Feed) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("feed: ws upgrade failed", "err", err)
		return
	}
	c := newClient(f, conn)
	f.register <- c
	go c.writePump()
	go c.readPump()
}

// makeCheckOrigin mirrors the teacher's hub.makeCheckOrigin: empty domain
// allows everything (with a startup warning), otherwise only the
// configured domain and local development hosts are allowed.
func makeCheckOrigin(domain string) func(*http.Request) bool {
	if domain == "" {
		slog.Warn("license feed: no allowed domain configured — WebSocket origin check is disabled")
		return func(r *http.Request) bool { return true }
	}

	allowed := normaliseHost(domain)

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || origin == "null" {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil {
			slog.Warn("feed: ws upgrade rejected: malformed Origin header", "origin", origin)
			return false
		}

		h := normaliseHost(u.Hostname())
		if h == allowed || h == "localhost" || h == "127.0.0.1" {
			return true
		}

		slog.Warn("feed: ws upgrade rejected: origin not allowed", "origin", origin, "allowed_domain", allowed)
		return false
	}
}

func normaliseHost(h string) string {
	h = strings.TrimPrefix(strings.TrimPrefix(strings.ToLower(h), "https://"), "http://")
	if i := strings.IndexByte(h, ':'); i >= 0 {
		h = h[:i]
	}
	return h
}
