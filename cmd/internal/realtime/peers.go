package realtime

import (
	"log/slog"

	"scrblit/cmd/internal/metrics"
	v1 "scrblit/shared/contracts/scribble/v1"
)

// peers is the live connection set. It is owned by the hub loop and never locked.
//
// Fanout never blocks. A client whose queue is full is evicted and closed rather than
// silently missing a stroke; it reconnects and resyncs from INITIAL_STATE.
type peers struct {
	log     *slog.Logger
	metrics *metrics.Metrics

	members map[string]*Client
}

func newPeers(log *slog.Logger, m *metrics.Metrics) *peers {
	return &peers{
		log:     log,
		metrics: m,
		members: make(map[string]*Client),
	}
}

func (p *peers) len() int { return len(p.members) }

func (p *peers) has(c *Client) bool {
	got, ok := p.members[c.ID]
	return ok && got == c
}

func (p *peers) join(c *Client) {
	p.members[c.ID] = c
	p.metrics.SetConnections(len(p.members))
	p.log.Info("hub.client.join", "client_id", c.ID, "connections", len(p.members))
}

// leave removes c. It does not close c; the transport owns that.
func (p *peers) leave(c *Client) bool {
	if !p.has(c) {
		return false
	}
	delete(p.members, c.ID)
	p.metrics.SetConnections(len(p.members))
	p.log.Info("hub.client.leave", "client_id", c.ID, "connections", len(p.members))
	return true
}

// deliver sends m to c. A client that is already shutting down is dropped quietly; one
// whose queue is full is evicted.
func (p *peers) deliver(c *Client, m v1.Message) bool {
	if c.closed() {
		delete(p.members, c.ID)
		return false
	}
	if c.trySend(m) {
		return true
	}
	delete(p.members, c.ID)
	c.Close()
	p.metrics.ClientEvicted()
	p.log.Warn("hub.client.evict", "client_id", c.ID, "kind", m.Kind().String(), "queue", cap(c.Send))
	return false
}

// broadcast delivers m to every member except skip (which may be nil).
func (p *peers) broadcast(m v1.Message, skip *Client) {
	for _, c := range p.members {
		if c == skip {
			continue
		}
		p.deliver(c, m)
	}
	p.metrics.SetConnections(len(p.members))
}

// closeAll closes and forgets every member.
func (p *peers) closeAll() {
	for id, c := range p.members {
		c.Close()
		delete(p.members, id)
	}
	p.metrics.SetConnections(0)
}
