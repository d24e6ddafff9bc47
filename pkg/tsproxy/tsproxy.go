// Package tsproxy is the agent's timeseries WebSocket proxy: it turns
// a client's cache-aware AgentRequest into a CacheEngine plan, fills
// whatever pages are missing by fetching them from the remote
// streaming service, and streams the assembled chunks back to the
// client.
//
// Grounded on the teacher's pkg/cluster/ws hub for the
// upgrade-then-read-loop WebSocket server shape (shared with
// pkg/statushub), paired with a second, outbound WebSocket connection
// to the remote streaming service per spec.md §4.8 — a role the
// teacher has no equivalent of, built fresh from gorilla/websocket's
// client Dialer.
package tsproxy

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/pennsieve/agent/internal/logger"
	"github.com/pennsieve/agent/pkg/cacheengine"
	"github.com/pennsieve/agent/pkg/registry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Proxy is the TSProxy WebSocket server.
type Proxy struct {
	engine    *cacheengine.Engine
	dialer    Dialer
	remoteURL string
	sender    registry.EventSender
}

// New constructs a Proxy. sender may be nil.
func New(engine *cacheengine.Engine, dialer Dialer, remoteURL string, sender registry.EventSender) *Proxy {
	return &Proxy{engine: engine, dialer: dialer, remoteURL: remoteURL, sender: sender}
}

// ServeHTTP upgrades the connection and serves client requests until
// the client disconnects.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("timeseries proxy upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			p.sendState(conn, stateError, "malformed request")
			continue
		}

		if msg.isAgentRequest() {
			p.handleAgentRequest(ctx, conn, msg.toAgentRequest())
		} else {
			p.handlePassthrough(ctx, conn, msg.toAPIRequest())
		}
	}
}

// handleAgentRequest drives one AgentRequest through the full
// plan/fetch/intake/drain cycle described in spec.md §4.8.
func (p *Proxy) handleAgentRequest(ctx context.Context, conn *websocket.Conn, req AgentRequest) {
	p.sendState(conn, stateNotReady, "")

	cacheReq := cacheengine.Request{
		Package: req.PackageID, Channels: toChannels(req.Channels),
		StartUs: req.StartTime, EndUs: req.EndTime, ChunkSize: req.ChunkSize, UseCache: req.UseCache,
	}
	resp, err := p.engine.Plan(ctx, cacheReq)
	if err != nil {
		p.sendState(conn, stateError, err.Error())
		return
	}

	if pageRequests := resp.PageRequests(); len(pageRequests) > 0 {
		if err := p.fetchRemote(ctx, req, resp, pageRequests); err != nil {
			p.sendState(conn, stateError, err.Error())
			return
		}
	}

	if err := resp.RecordPageRequests(ctx); err != nil {
		p.sendState(conn, stateError, err.Error())
		return
	}

	p.sendState(conn, stateReady, "")
	if err := p.drain(ctx, conn, resp); err != nil {
		p.sendState(conn, stateError, err.Error())
		return
	}
	p.sendState(conn, stateDone, "")
}

// groupKey identifies one originally requested page, the unit the
// remote streaming service's per-message countdown (totalResponses)
// is scoped to.
type groupKey struct {
	source    string
	pageStart int64
	pageEnd   int64
}

// fetchRemote opens one remote connection, forwards every uncached
// page as its own ApiRequest, and feeds every returned segment into
// resp until every page's group has reported totalResponses messages.
func (p *Proxy) fetchRemote(ctx context.Context, req AgentRequest, resp *cacheengine.Response, pageRequests []cacheengine.PageRequest) error {
	stream, err := p.dialer.Dial(ctx, p.remoteURL, req.Session)
	if err != nil {
		return err
	}
	defer stream.Close()

	remaining := make(map[groupKey]int, len(pageRequests))
	for _, pr := range pageRequests {
		key := groupKey{source: pr.ChannelID, pageStart: pr.PageStart, pageEnd: pr.PageEnd}
		remaining[key] = -1 // unknown until the group's first message arrives

		apiReq := ApiRequest{
			Session: req.Session, PackageID: req.PackageID, Channel: pr.ChannelID,
			StartTime: pr.PageStart, EndTime: pr.PageEnd,
		}
		if err := stream.Send(apiReq); err != nil {
			return err
		}
	}

	pendingGroups := len(pageRequests)
	for pendingGroups > 0 {
		msg, err := stream.Recv()
		if err != nil {
			return err
		}

		key := groupKey{source: msg.Source, pageStart: msg.PageStart, pageEnd: msg.PageEnd}
		left, tracked := remaining[key]
		if !tracked {
			// A segment for a group this request never asked for; the
			// remote multiplexes several in-flight requests over one
			// connection in general, but fetchRemote owns this
			// connection exclusively, so this should not happen in
			// practice. Ignore rather than fail the whole request.
			continue
		}
		if left < 0 {
			left = msg.TotalResponses
		}
		left--
		remaining[key] = left

		if err := resp.IntakeSegment(ctx, cacheengine.Segment{
			Source: msg.Source, StartTs: msg.StartTs, SamplePeriod: msg.SamplePeriod, Data: msg.Data,
		}); err != nil {
			return err
		}

		if left <= 0 {
			pendingGroups--
		}
	}
	return nil
}

// handlePassthrough forwards a single ApiRequest straight to the
// remote service and relays its response frames back to the client
// unchanged, bypassing CacheEngine entirely.
func (p *Proxy) handlePassthrough(ctx context.Context, conn *websocket.Conn, req ApiRequest) {
	stream, err := p.dialer.Dial(ctx, p.remoteURL, req.Session)
	if err != nil {
		p.sendState(conn, stateError, err.Error())
		return
	}
	defer stream.Close()

	if err := stream.Send(req); err != nil {
		p.sendState(conn, stateError, err.Error())
		return
	}

	for {
		msg, err := stream.Recv()
		if err != nil {
			return
		}
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			return
		}
		if msg.ResponseSequenceID+1 >= msg.TotalResponses {
			return
		}
	}
}

// drain writes every chunk CacheEngine produces for resp to the
// client as a binary frame.
func (p *Proxy) drain(ctx context.Context, conn *websocket.Conn, resp *cacheengine.Response) error {
	for {
		chunk, ok, err := resp.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		data, err := json.Marshal(toChunkFrame(chunk))
		if err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			return err
		}
	}
}

func (p *Proxy) sendState(conn *websocket.Conn, code stateCode, description string) {
	data, err := json.Marshal(agentResponse{Code: code, Description: description})
	if err != nil {
		logger.Warn("failed to marshal timeseries proxy state", "error", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		logger.Warn("failed to write timeseries proxy state", "error", err)
	}
}

func toChannels(rcs []RequestChannel) []cacheengine.Channel {
	out := make([]cacheengine.Channel, len(rcs))
	for i, c := range rcs {
		out[i] = cacheengine.Channel{ID: c.ID, RateHz: c.Rate}
	}
	return out
}

func toChunkFrame(c *cacheengine.Chunk) chunkFrame {
	points := make(map[string][]chunkPoint, len(c.Points))
	for ch, pts := range c.Points {
		out := make([]chunkPoint, len(pts))
		for i, p := range pts {
			out[i] = chunkPoint{TimeUs: p.TimeUs, Value: p.Value}
		}
		points[ch] = out
	}
	return chunkFrame{Points: points}
}

// Run listens on addr, serving TSProxy until ctx is cancelled.
func Run(ctx context.Context, addr string, p *Proxy) error {
	srv := &http.Server{Addr: addr, Handler: p}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		_ = srv.Close()
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
