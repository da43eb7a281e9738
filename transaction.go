package redkit

/*
Transactions: MULTI/EXEC/DISCARD/WATCH/UNWATCH

Grounded on the queue-then-replay shape in
faizanhussain2310-GoRedis's pipeline transaction handler: MULTI flips the
connection into queueing mode, every subsequent command (other than
EXEC/DISCARD/WATCH/UNWATCH/RESET and MULTI itself) is appended to the queue instead of
running, and a command that fails to even queue (unknown command, wrong
arity) marks the transaction dirty so EXEC refuses to run any of it —
matching real Redis's "errors discovered before EXEC abort the whole
transaction" behavior. WATCH's dirty check is the O(1) version-counter
comparison described in keyspace.go rather than a list of watched
clients: each WATCH records (key, version-at-watch-time), and EXEC
succeeds only if every recorded version still matches.
*/

// BeginMulti puts the connection into queueing mode. Returns false if a
// transaction was already open (MULTI calls don't nest).
func (c *Connection) BeginMulti() bool {
	if c.txState != TxNone {
		return false
	}
	c.txState = TxQueued
	c.txQueue = nil
	return true
}

// InMulti reports whether the connection is inside MULTI.
func (c *Connection) InMulti() bool {
	return c.txState != TxNone
}

// QueueCommand appends cmd to the transaction queue.
func (c *Connection) QueueCommand(cmd *Command) {
	c.txQueue = append(c.txQueue, cmd)
}

// MarkDirty flags the current transaction as doomed: EXEC will refuse to
// run it and report an error instead, without discarding the queue (the
// client still must send EXEC or DISCARD to leave MULTI mode, matching
// Redis).
func (c *Connection) MarkDirty() {
	if c.txState == TxQueued {
		c.txState = TxDirty
	}
}

// IsDirty reports whether the open transaction has been marked dirty by
// a queueing-time error.
func (c *Connection) IsDirty() bool {
	return c.txState == TxDirty
}

// DrainMulti returns the queued commands and resets transaction and
// watch state, for use by both EXEC and DISCARD.
func (c *Connection) DrainMulti() []*Command {
	queue := c.txQueue
	c.txState = TxNone
	c.txQueue = nil
	c.watch = nil
	return queue
}

// Watch records key's current version for later comparison by
// WatchValid. Safe to call outside MULTI (Redis allows WATCH before
// MULTI, not after).
func (c *Connection) Watch(ks *Keyspace, key string) {
	if c.watch == nil {
		c.watch = make(map[string]uint64)
	}
	c.watch[key] = ks.CurrentVersion(key)
}

// Unwatch clears all watched keys.
func (c *Connection) Unwatch() {
	c.watch = nil
}

// WatchValid reports whether every watched key still has the version it
// had when WATCH was issued. An empty watch set is trivially valid.
func (c *Connection) WatchValid(ks *Keyspace) bool {
	for key, ver := range c.watch {
		if ks.CurrentVersion(key) != ver {
			return false
		}
	}
	return true
}
