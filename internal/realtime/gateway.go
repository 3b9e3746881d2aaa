// Package realtime is the WebSocket entrypoint.
//
// Identity is resolved during the handshake and never blocks it: a bad or
// missing token downgrades the connection to anonymous instead of failing the
// upgrade. Privileged operations re-check the resolved principal per frame.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/7L7K/GesahniV2-sub005/internal/auth/creds"
	"github.com/7L7K/GesahniV2-sub005/internal/auth/identity"
)

const (
	wsSubprotocol = "gesahni.v1"

	wsMaxFrameBytes  = 32 * 1024
	wsWriteTimeout   = 5 * time.Second
	wsReadIdle       = 2 * time.Minute
	wsPingEvery      = 30 * time.Second
	wsPingTimeout    = 10 * time.Second
	wsMaxPingFailure = 3

	// Origin is required by default; only localhost is allowed out of the box.
	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// WSGateway upgrades handshakes, resolves identity fail-open, and runs the
// per-connection frame loop.
type WSGateway struct {
	log      *slog.Logger
	resolver *identity.Resolver

	originRequired bool
	allowedOrigins []string
	originPatterns []string

	rateEvents int
	rateWindow time.Duration
}

// NewWSGateway constructs a gateway with secure defaults.
func NewWSGateway(log *slog.Logger, resolver *identity.Resolver) *WSGateway {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	g := &WSGateway{log: log, resolver: resolver}
	g.originRequired = envBoolWS("GESAHNI_WS_ORIGIN_REQUIRED", wsDefaultOriginRequired)
	g.allowedOrigins = envCSVWS("GESAHNI_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins)

	// websocket.Accept authorizes same-host origins by default; cross-origin
	// needs OriginPatterns, derived here so both layers agree.
	g.originPatterns = originPatternsFromAllowed(g.allowedOrigins)

	g.rateEvents = envIntWS("GESAHNI_WS_RATE_EVENTS", defaultRateEvents)
	g.rateWindow = envDurationWS("GESAHNI_WS_RATE_WINDOW", defaultRateWindow)
	return g
}

// ServeHTTP adapter so the gateway mounts as an http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS resolves identity, upgrades the connection, and runs the loop.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	// Resolve before the upgrade while the handshake headers are at hand.
	// Decode failures land on anonymous, never a failed upgrade. A Rejected
	// resolution is different: it only comes out of the replay-detection
	// path, and that one closes the door on every transport.
	now := time.Now().UTC()
	res := g.resolver.Resolve(r.Context(), now, creds.FromWebSocket(r))
	if res.Outcome == identity.OutcomeRejected {
		g.log.Info("ws.reject.credential", "reason", res.Reason, "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{wsSubprotocol},
		OriginPatterns: g.originPatterns,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	conn.SetReadLimit(wsMaxFrameBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	g.log.Info("ws.open",
		"user_id", res.Principal.UserID,
		"authenticated", res.Principal.Authenticated,
		"remote", r.RemoteAddr)

	if err := g.sendHello(ctx, conn, res, now); err != nil {
		g.log.Info("ws.hello.fail", "err", err)
		return
	}

	go g.heartbeat(ctx, cancel, conn)
	g.readLoop(ctx, conn, res)
}

func (g *WSGateway) sendHello(ctx context.Context, conn *websocket.Conn, res identity.Resolution, now time.Time) error {
	p, _ := json.Marshal(HelloPayload{
		UserID:        res.Principal.UserID,
		Authenticated: res.Principal.Authenticated,
	})
	return writeEnvelope(ctx, conn, newEnvelope(TypeHello, p, now))
}

func (g *WSGateway) heartbeat(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	t := time.NewTicker(wsPingEvery)
	defer t.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, wsPingTimeout)
			err := conn.Ping(pingCtx)
			pingCancel()

			if err != nil {
				failures++
				if failures >= wsMaxPingFailure {
					_ = conn.Close(websocket.StatusGoingAway, "heartbeat failed")
					cancel()
					return
				}
				continue
			}
			failures = 0
		}
	}
}

func (g *WSGateway) readLoop(ctx context.Context, conn *websocket.Conn, res identity.Resolution) {
	rl := NewLimiter(g.rateEvents, g.rateWindow)

	for {
		readCtx, readCancel := context.WithTimeout(ctx, wsReadIdle)
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrBadJSON:
				g.trySendError(ctx, conn, "bad_json", "invalid JSON")
				continue
			default:
				return
			}
		}

		now := time.Now().UTC()
		if !rl.Allow(now) {
			g.trySendError(ctx, conn, "rate_limited", "too many events")
			_ = conn.Close(websocket.StatusPolicyViolation, "rate limited")
			return
		}

		if err := env.Validate(); err != nil {
			g.trySendError(ctx, conn, "bad_envelope", err.Error())
			continue
		}

		switch env.Type {
		case TypePing:
			_ = writeEnvelope(ctx, conn, newEnvelope(TypePong, nil, now))

		case TypeWhoami:
			p, _ := json.Marshal(HelloPayload{
				UserID:        res.Principal.UserID,
				Authenticated: res.Principal.Authenticated,
			})
			_ = writeEnvelope(ctx, conn, newEnvelope(TypeWhoami, p, now))

		default:
			g.trySendError(ctx, conn, "unsupported", fmt.Sprintf("unsupported type: %s", env.Type))
		}
	}
}

// ---- frame IO ----

func (g *WSGateway) trySendError(ctx context.Context, conn *websocket.Conn, code, msg string) {
	p, _ := json.Marshal(ErrorPayload{Code: code, Message: msg})
	_ = writeEnvelope(ctx, conn, newEnvelope(TypeError, p, time.Now().UTC()))
}

func readEnvelope(ctx context.Context, conn *websocket.Conn) (Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env Envelope) error {
	ctx, cancel := context.WithTimeout(parent, wsWriteTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrFatal readErrKind = iota
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrFatal
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrFatal
	}
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		return readErrBadJSON
	}
	s := err.Error()
	if strings.Contains(s, "unexpected end of JSON input") || strings.Contains(s, "invalid character") {
		return readErrBadJSON
	}
	return readErrFatal
}

// ---- origin policy ----

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.allowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)
	for _, a := range g.allowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			return nil
		}
		if origin == a {
			return nil
		}
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

func originPatternsFromAllowed(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j] < out[i] {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

// ---- env helpers ----

func envBoolWS(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSVWS(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
