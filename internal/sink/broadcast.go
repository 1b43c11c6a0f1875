package sink

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"urchin/internal/frame"
	"urchin/internal/metrics"
)

// wirePacket is the JSON shape sent to visualizer peers: one RGB triple
// per LED, grouped by spine.
type wirePacket struct {
	Spines [][][3]uint8 `json:"spines"`
}

func encodeFrame(f *frame.Frame) ([]byte, error) {
	p := wirePacket{Spines: make([][][3]uint8, len(f.Spines))}
	for i, spine := range f.Spines {
		p.Spines[i] = make([][3]uint8, len(spine))
		for j, c := range spine {
			p.Spines[i][j] = [3]uint8{c.R, c.G, c.B}
		}
	}
	return json.Marshal(&p)
}

const (
	peerSendBuffer  = 8
	peerWriteWindow = 200 * time.Millisecond
)

type peer struct {
	id   int
	conn *websocket.Conn
	send chan []byte
}

// Broadcast fans rendered frames out to websocket peers. Each peer gets
// a buffered channel and a dedicated writer; a peer that cannot keep up
// loses frames rather than slowing the tick loop.
type Broadcast struct {
	log      zerolog.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	dropped atomic.Uint64

	mu     sync.Mutex
	closed bool
	nextID int
	peers  map[*peer]struct{}
}

// NewBroadcast returns a Broadcast with no peers. Register peers by
// routing websocket upgrade requests to ServeHTTP.
func NewBroadcast(log zerolog.Logger, m *metrics.Metrics) *Broadcast {
	return &Broadcast{
		log:     log,
		metrics: m,
		upgrader: websocket.Upgrader{
			// Peers are trusted tooling on the sculpture's own network.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		peers: make(map[*peer]struct{}),
	}
}

// ServeHTTP upgrades the request to a websocket and registers the peer
// until it disconnects or Close is called.
func (b *Broadcast) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		b.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		conn.Close()
		return
	}
	p := &peer{id: b.nextID, conn: conn, send: make(chan []byte, peerSendBuffer)}
	b.nextID++
	b.peers[p] = struct{}{}
	n := len(b.peers)
	b.mu.Unlock()

	b.metrics.SetPeers(n)
	b.log.Info().Int("peer", p.id).Str("remote", conn.RemoteAddr().String()).Msg("visualizer connected")

	go b.writePump(p)
	go b.readPump(p)
}

// Accept encodes the frame once and offers it to every peer without
// blocking. Peers with a full send buffer miss this frame.
func (b *Broadcast) Accept(f *frame.Frame) {
	payload, err := encodeFrame(f)
	if err != nil {
		b.metrics.SinkError("broadcast")
		b.log.Error().Err(err).Msg("frame encode failed")
		return
	}

	var drops int
	b.mu.Lock()
	for p := range b.peers {
		select {
		case p.send <- payload:
		default:
			drops++
		}
	}
	b.mu.Unlock()

	if drops > 0 {
		b.dropped.Add(uint64(drops))
		b.metrics.DropFrames(drops)
	}
}

// Peers reports the number of connected visualizers.
func (b *Broadcast) Peers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.peers)
}

// Dropped reports the total frames discarded due to peer backpressure.
func (b *Broadcast) Dropped() uint64 {
	return b.dropped.Load()
}

// Close disconnects all peers and rejects future upgrades.
func (b *Broadcast) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	peers := make([]*peer, 0, len(b.peers))
	for p := range b.peers {
		peers = append(peers, p)
		delete(b.peers, p)
		close(p.send)
	}
	b.mu.Unlock()

	for _, p := range peers {
		p.conn.Close()
	}
	b.metrics.SetPeers(0)
	return nil
}

// remove unregisters the peer. Closing p.send under the same mutex that
// guards Accept's sends keeps the two from racing.
func (b *Broadcast) remove(p *peer, reason error) {
	b.mu.Lock()
	_, ok := b.peers[p]
	if ok {
		delete(b.peers, p)
		close(p.send)
	}
	n := len(b.peers)
	b.mu.Unlock()

	if !ok {
		return
	}
	p.conn.Close()
	b.metrics.SetPeers(n)
	b.log.Info().Int("peer", p.id).AnErr("reason", reason).Msg("visualizer disconnected")
}

func (b *Broadcast) writePump(p *peer) {
	for payload := range p.send {
		p.conn.SetWriteDeadline(time.Now().Add(peerWriteWindow))
		if err := p.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			b.remove(p, err)
			return
		}
	}
}

// readPump discards inbound traffic; its only job is to notice the peer
// going away.
func (b *Broadcast) readPump(p *peer) {
	for {
		if _, _, err := p.conn.ReadMessage(); err != nil {
			b.remove(p, err)
			return
		}
	}
}
