package transport

import (
	"chat-pair/domain"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const peerBufferSize = 256

// Relay rebroadcasts every envelope it receives to all the other connected observers.
// It keeps no state: an observer connecting late catches up through STATE_REQUEST.
type Relay struct {
	log          *slog.Logger
	writeTimeout time.Duration

	mu    sync.RWMutex
	peers map[string]*peer
}

type peer struct {
	id       string
	conn     *websocket.Conn
	outbound chan []byte
}

func NewRelay(log *slog.Logger, writeTimeout time.Duration) *Relay {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Relay{log: log, writeTimeout: writeTimeout, peers: make(map[string]*peer)}
}

func (r *Relay) Peers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := websocket.Accept(w, req, nil)
	if err != nil {
		r.log.Warn("Relay handshake failed", "remote", req.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(maxFrameSize)

	p := &peer{id: uuid.NewString(), conn: conn, outbound: make(chan []byte, peerBufferSize)}
	r.add(p)
	defer r.remove(p)

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()
	go r.writeLoop(ctx, cancel, p)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				r.log.Debug("Relay peer read failed", "peer", p.id, "error", err)
			}
			_ = conn.CloseNow()
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		var envelope domain.Envelope
		if err := json.Unmarshal(data, &envelope); err != nil || envelope.Type == "" {
			r.log.Warn("Relay dropped malformed envelope", "peer", p.id, "error", err)
			continue
		}
		r.broadcast(p, data)
	}
}

func (r *Relay) writeLoop(ctx context.Context, cancel context.CancelFunc, p *peer) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-p.outbound:
			writeCtx, done := context.WithTimeout(ctx, r.writeTimeout)
			err := p.conn.Write(writeCtx, websocket.MessageText, data)
			done()
			if err != nil {
				r.log.Debug("Relay peer write failed", "peer", p.id, "error", err)
				_ = p.conn.CloseNow()
				return
			}
		}
	}
}

func (r *Relay) broadcast(from *peer, data []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, p := range r.peers {
		if id == from.id {
			continue
		}
		select {
		case p.outbound <- data:
		default:
			r.log.Warn("Relay peer too slow, envelope dropped", "peer", id)
		}
	}
}

func (r *Relay) add(p *peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[p.id] = p
	r.log.Info("Observer connected to relay", "peer", p.id, "peers", len(r.peers))
}

func (r *Relay) remove(p *peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, p.id)
	r.log.Info("Observer left relay", "peer", p.id, "peers", len(r.peers))
}

// Shutdown closes every peer connection. Observers reconnect to whichever relay answers next.
func (r *Relay) Shutdown() {
	r.mu.RLock()
	peers := lo.Values(r.peers)
	r.mu.RUnlock()
	for _, p := range peers {
		_ = p.conn.Close(websocket.StatusGoingAway, "relay shutting down")
	}
}
