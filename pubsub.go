package redkit

import (
	"sync"

	"github.com/gobwas/glob"
)

/*
Pub/Sub bus

PubSub fans PUBLISH traffic out to subscribers of an exact channel name
and to subscribers of glob patterns (PSUBSCRIBE), synchronously and
at-most-once per spec §4.E. No pack example implements Redis pub/sub
end-to-end, so this is built directly from the spec; per its "index
subscribers by id, not by raw pointer" design note, subscriber
connections are tracked in a map keyed by Connection.id, with the
*Connection itself stored alongside so PUBLISH can still write to it
directly — avoiding a second lookup structure back in Server.
*/

// PubSub is the channel/pattern subscriber registry for one server.
type PubSub struct {
	mu       sync.RWMutex
	channels map[string]map[uint64]*Connection
	patterns map[string]*patternSub
}

type patternSub struct {
	glob  glob.Glob
	conns map[uint64]*Connection
}

// NewPubSub returns an empty bus.
func NewPubSub() *PubSub {
	return &PubSub{
		channels: make(map[string]map[uint64]*Connection),
		patterns: make(map[string]*patternSub),
	}
}

// Subscribe adds conn as a subscriber of channel. Returns the
// connection's total subscription count (channels + patterns) after the
// change, for the SUBSCRIBE reply.
func (p *PubSub) Subscribe(conn *Connection, channel string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.channels[channel]
	if !ok {
		set = make(map[uint64]*Connection)
		p.channels[channel] = set
	}
	set[conn.id] = conn
	conn.channels[channel] = struct{}{}
	return len(conn.channels) + len(conn.patterns)
}

// Unsubscribe removes conn from channel. Returns the connection's
// remaining subscription count.
func (p *PubSub) Unsubscribe(conn *Connection, channel string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if set, ok := p.channels[channel]; ok {
		delete(set, conn.id)
		if len(set) == 0 {
			delete(p.channels, channel)
		}
	}
	delete(conn.channels, channel)
	return len(conn.channels) + len(conn.patterns)
}

// PSubscribe adds conn as a subscriber of pattern.
func (p *PubSub) PSubscribe(conn *Connection, pattern string) (int, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ps, ok := p.patterns[pattern]
	if !ok {
		ps = &patternSub{glob: g, conns: make(map[uint64]*Connection)}
		p.patterns[pattern] = ps
	}
	ps.conns[conn.id] = conn
	conn.patterns[pattern] = g
	return len(conn.channels) + len(conn.patterns), nil
}

// PUnsubscribe removes conn from pattern.
func (p *PubSub) PUnsubscribe(conn *Connection, pattern string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ps, ok := p.patterns[pattern]; ok {
		delete(ps.conns, conn.id)
		if len(ps.conns) == 0 {
			delete(p.patterns, pattern)
		}
	}
	delete(conn.patterns, pattern)
	return len(conn.channels) + len(conn.patterns)
}

// UnsubscribeAll removes conn from every channel and pattern it holds,
// used on connection close.
func (p *PubSub) UnsubscribeAll(conn *Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for ch := range conn.channels {
		if set, ok := p.channels[ch]; ok {
			delete(set, conn.id)
			if len(set) == 0 {
				delete(p.channels, ch)
			}
		}
	}
	for pat := range conn.patterns {
		if ps, ok := p.patterns[pat]; ok {
			delete(ps.conns, conn.id)
			if len(ps.conns) == 0 {
				delete(p.patterns, pat)
			}
		}
	}
	conn.channels = make(map[string]struct{})
	conn.patterns = make(map[string]glob.Glob)
}

// Publish delivers message to every direct subscriber of channel and
// every subscriber whose pattern matches channel, writing each a
// "message" or "pmessage" push frame. It returns the number of clients
// the message was delivered to. Delivery is synchronous and best-effort:
// a write error on one subscriber's connection doesn't block delivery to
// others, and the broken connection is left for its own read loop to
// notice and close.
func (p *PubSub) Publish(channel string, message []byte) int {
	p.mu.RLock()
	var targets []*Connection
	var kinds []string
	var extra []string
	if set, ok := p.channels[channel]; ok {
		for _, c := range set {
			targets = append(targets, c)
			kinds = append(kinds, "message")
			extra = append(extra, "")
		}
	}
	for pattern, ps := range p.patterns {
		if !ps.glob.Match(channel) {
			continue
		}
		for _, c := range ps.conns {
			targets = append(targets, c)
			kinds = append(kinds, "pmessage")
			extra = append(extra, pattern)
		}
	}
	p.mu.RUnlock()

	for i, conn := range targets {
		var frame RedisValue
		if kinds[i] == "pmessage" {
			frame = RedisValue{Type: Array, Array: []RedisValue{
				{Type: BulkString, Bulk: []byte("pmessage")},
				{Type: BulkString, Bulk: []byte(extra[i])},
				{Type: BulkString, Bulk: []byte(channel)},
				{Type: BulkString, Bulk: message},
			}}
		} else {
			frame = RedisValue{Type: Array, Array: []RedisValue{
				{Type: BulkString, Bulk: []byte("message")},
				{Type: BulkString, Bulk: []byte(channel)},
				{Type: BulkString, Bulk: message},
			}}
		}
		conn.mu.Lock()
		_ = conn.writeValue(frame)
		_ = conn.writer.Flush()
		conn.mu.Unlock()
	}
	return len(targets)
}

// Channels returns every channel with at least one direct subscriber,
// optionally filtered by a glob pattern (empty pattern means all).
func (p *PubSub) Channels(pattern string) ([]string, error) {
	var g glob.Glob
	if pattern != "" {
		compiled, err := glob.Compile(pattern)
		if err != nil {
			return nil, err
		}
		g = compiled
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.channels))
	for ch := range p.channels {
		if g == nil || g.Match(ch) {
			out = append(out, ch)
		}
	}
	return out, nil
}

// NumSub returns the direct-subscriber count for each requested channel.
func (p *PubSub) NumSub(channels []string) map[string]int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]int, len(channels))
	for _, ch := range channels {
		out[ch] = len(p.channels[ch])
	}
	return out
}
