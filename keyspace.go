/*
Package redkit implements the keyspace and value model described by the
store's data model: a polymorphic mapping from byte-string keys to typed
values (string, list, set, hash, sorted set) with lazy expiration.

This file is new relative to the teacher skeleton it was adapted from
(l00pss/redkit's commands.go only ever simulated a single string map in
its example program); the tagged-variant design follows the guidance in
that teacher's types.go doc comments almost to the letter: "a tagged
variant (sum type) is the natural representation; each variant owns its
internal container."

Every operation here first resolves lazy expiration: a key whose deadline
has passed is treated, and removed, as if absent the moment any operation
observes it. No background sweeper exists; FLUSHALL and friends are the
only bulk removal path.
*/
package redkit

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/glob"
)

// ValueKind tags the five variants a keyspace entry's value can hold.
// Streams are out of scope for this server (see spec Non-goals) and have
// no tag here.
type ValueKind int

const (
	KindString ValueKind = iota
	KindList
	KindSet
	KindHash
	KindSortedSet
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindSet:
		return "set"
	case KindHash:
		return "hash"
	case KindSortedSet:
		return "zset"
	default:
		return "none"
	}
}

// Value is the tagged union backing every keyspace entry. Only the field
// matching Kind is meaningful; replacing a Value at a key releases the
// prior container's storage (the old *Value, and everything it owns,
// simply becomes unreachable).
type Value struct {
	Kind ValueKind

	Str  []byte
	List [][]byte
	Set  map[string]struct{}
	Hash map[string][]byte
	ZSet *sortedSet
}

// ErrWrongType is returned whenever a command targets a key whose value
// variant doesn't match what the command requires. It never mutates the
// key: callers must check this before touching any container state.
var ErrWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

// entry is the keyspace's internal representation of "(value, expiry_ms)"
// from the data model, plus a mutation version used by WATCH.
type entry struct {
	value     *Value
	expiresAt int64 // absolute ms since epoch; 0 means no expiry
	version   uint64
}

func (e *entry) expired(nowMs int64) bool {
	return e.expiresAt != 0 && e.expiresAt <= nowMs
}

// Keyspace is the single logical database. All access is serialized by
// mu; each client connection runs its commands on its own goroutine (as
// does a replica's apply loop), so those goroutines contend on mu.
type Keyspace struct {
	mu      sync.Mutex
	data    map[string]*entry
	nextVer uint64
}

// NewKeyspace constructs an empty keyspace.
func NewKeyspace() *Keyspace {
	return &Keyspace{data: make(map[string]*entry)}
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

// bumpVersion assigns a new, keyspace-wide-unique version to e. Using a
// single monotonic counter (rather than resetting to 1 on every fresh
// entry) is what keeps WATCH correct across delete-then-recreate: a key
// that disappears and reappears always gets a version greater than any
// version it held before, so a watcher who snapshotted the old version
// (or 0, if the key was absent) can never be fooled by a coincidental
// replay of the same number.
func (ks *Keyspace) bumpVersion(e *entry) {
	e.version = atomic.AddUint64(&ks.nextVer, 1)
}

// lookupLocked returns the live entry for key, deleting it first if its
// deadline has passed. Caller must hold ks.mu.
func (ks *Keyspace) lookupLocked(key string) (*entry, bool) {
	e, ok := ks.data[key]
	if !ok {
		return nil, false
	}
	if e.expired(nowMs()) {
		delete(ks.data, key)
		return nil, false
	}
	return e, true
}

// CurrentVersion returns the mutation version WATCH should record for
// key: the entry's version if it's live, or 0 if it's absent/expired.
func (ks *Keyspace) CurrentVersion(key string) uint64 {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if e, ok := ks.lookupLocked(key); ok {
		return e.version
	}
	return 0
}

// ---------------------------------------------------------------------
// Expiration policy plumbing, shared by SET and the standalone EXPIRE
// family.
// ---------------------------------------------------------------------

// ExpiryPolicy selects how SET should treat a key's existing deadline.
type ExpiryPolicy int

const (
	ExpiryKeep ExpiryPolicy = iota // KEEPTTL: leave any existing deadline alone
	ExpiryClear                    // default SET behavior: drop any deadline
	ExpiryAbsoluteMs                // EXAT/PXAT: Ms is an absolute deadline
	ExpiryRelativeMs                // EX/PX: Ms is added to now
)

// Expiry carries a policy plus the millisecond value it needs, if any.
type Expiry struct {
	Policy ExpiryPolicy
	Ms     int64
}

// Presence selects SET's NX/XX gating.
type Presence int

const (
	PresenceAny Presence = iota
	PresenceOnlyIfAbsent
	PresenceOnlyIfPresent
)

// ExpireCondition selects EXPIRE's NX/XX/GT/LT gating (spec §4.B).
type ExpireCondition int

const (
	ExpireAlways ExpireCondition = iota
	ExpireNX                     // only if key has no current expiry
	ExpireXX                     // only if key has a current expiry
	ExpireGT                     // only if new expiry is later than current
	ExpireLT                     // only if new expiry is sooner than current (or none)
)

func resolveExpiry(e *entry, policy ExpiryPolicy, ms int64) {
	switch policy {
	case ExpiryKeep:
		// leave e.expiresAt untouched
	case ExpiryClear:
		e.expiresAt = 0
	case ExpiryAbsoluteMs:
		e.expiresAt = ms
	case ExpiryRelativeMs:
		e.expiresAt = nowMs() + ms
	}
}

// ---------------------------------------------------------------------
// String operations
// ---------------------------------------------------------------------

// GetString returns the value for key. ok is false if the key is absent
// or expired. err is ErrWrongType if key holds a non-string value.
func (ks *Keyspace) GetString(key string) (val []byte, ok bool, err error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, found := ks.lookupLocked(key)
	if !found {
		return nil, false, nil
	}
	if e.value.Kind != KindString {
		return nil, false, ErrWrongType
	}
	return e.value.Str, true, nil
}

// SetString sets key to val, subject to presence and expiry policy.
// Returns false only when the presence condition blocked the write (the
// key was not otherwise touched).
func (ks *Keyspace) SetString(key string, val []byte, exp Expiry, presence Presence) (bool, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	e, found := ks.lookupLocked(key)
	switch presence {
	case PresenceOnlyIfAbsent:
		if found {
			return false, nil
		}
	case PresenceOnlyIfPresent:
		if !found {
			return false, nil
		}
	}

	if !found {
		e = &entry{value: &Value{Kind: KindString}}
		ks.data[key] = e
	} else if e.value.Kind != KindString {
		e.value = &Value{Kind: KindString}
	}
	e.value.Str = append([]byte(nil), val...)
	resolveExpiry(e, exp.Policy, exp.Ms)
	ks.bumpVersion(e)
	return true, nil
}

// ---------------------------------------------------------------------
// Generic key operations
// ---------------------------------------------------------------------

// Del removes keys, returning the count actually removed.
func (ks *Keyspace) Del(keys ...string) int {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	n := 0
	for _, k := range keys {
		if _, ok := ks.lookupLocked(k); ok {
			delete(ks.data, k)
			n++
		}
	}
	return n
}

// Exists counts how many of keys are currently present, counting
// duplicates in the input.
func (ks *Keyspace) Exists(keys ...string) int {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	n := 0
	for _, k := range keys {
		if _, ok := ks.lookupLocked(k); ok {
			n++
		}
	}
	return n
}

// Type returns the type name for key, or "none" if absent.
func (ks *Keyspace) Type(key string) string {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, ok := ks.lookupLocked(key)
	if !ok {
		return "none"
	}
	return e.value.Kind.String()
}

// Keys returns every live key matching pattern (a Redis-style glob).
func (ks *Keyspace) Keys(pattern string) ([]string, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, err
	}
	ks.mu.Lock()
	defer ks.mu.Unlock()
	now := nowMs()
	out := make([]string, 0, len(ks.data))
	for k, e := range ks.data {
		if e.expired(now) {
			delete(ks.data, k)
			continue
		}
		if g.Match(k) {
			out = append(out, k)
		}
	}
	return out, nil
}

// RandomKey returns an arbitrary live key, or "" if the keyspace is
// empty. Map iteration order in Go is already randomized per-run, which
// is sufficient for this spec's purposes.
func (ks *Keyspace) RandomKey() string {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	now := nowMs()
	for k, e := range ks.data {
		if e.expired(now) {
			delete(ks.data, k)
			continue
		}
		return k
	}
	return ""
}

// DBSize returns the count of live keys.
func (ks *Keyspace) DBSize() int {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	now := nowMs()
	n := 0
	for k, e := range ks.data {
		if e.expired(now) {
			delete(ks.data, k)
			continue
		}
		n++
	}
	return n
}

// FlushAll removes every key.
func (ks *Keyspace) FlushAll() {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.data = make(map[string]*entry)
}

// Rename moves src's value (and expiry) to dst, overwriting dst if it
// exists. Returns an error if src is absent.
func (ks *Keyspace) Rename(src, dst string) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, ok := ks.lookupLocked(src)
	if !ok {
		return errors.New("ERR no such key")
	}
	delete(ks.data, src)
	ks.data[dst] = e
	ks.bumpVersion(e)
	return nil
}

// RenameNX is Rename, but only if dst doesn't already exist. Returns
// whether the rename happened.
func (ks *Keyspace) RenameNX(src, dst string) (bool, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if _, ok := ks.lookupLocked(dst); ok {
		return false, nil
	}
	e, ok := ks.lookupLocked(src)
	if !ok {
		return false, errors.New("ERR no such key")
	}
	delete(ks.data, src)
	ks.data[dst] = e
	ks.bumpVersion(e)
	return true, nil
}

// Copy duplicates src's value to dst. If dst exists and replace is
// false, the copy is refused.
func (ks *Keyspace) Copy(src, dst string, replace bool) (bool, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, ok := ks.lookupLocked(src)
	if !ok {
		return false, nil
	}
	if !replace {
		if _, exists := ks.lookupLocked(dst); exists {
			return false, nil
		}
	}
	clone := &entry{value: cloneValue(e.value), expiresAt: e.expiresAt}
	ks.data[dst] = clone
	ks.bumpVersion(clone)
	return true, nil
}

func cloneValue(v *Value) *Value {
	switch v.Kind {
	case KindString:
		return &Value{Kind: KindString, Str: append([]byte(nil), v.Str...)}
	case KindList:
		l := make([][]byte, len(v.List))
		for i, item := range v.List {
			l[i] = append([]byte(nil), item...)
		}
		return &Value{Kind: KindList, List: l}
	case KindSet:
		s := make(map[string]struct{}, len(v.Set))
		for m := range v.Set {
			s[m] = struct{}{}
		}
		return &Value{Kind: KindSet, Set: s}
	case KindHash:
		h := make(map[string][]byte, len(v.Hash))
		for f, val := range v.Hash {
			h[f] = append([]byte(nil), val...)
		}
		return &Value{Kind: KindHash, Hash: h}
	case KindSortedSet:
		return &Value{Kind: KindSortedSet, ZSet: v.ZSet.clone()}
	default:
		return &Value{Kind: v.Kind}
	}
}

// ---------------------------------------------------------------------
// Expiration operations
// ---------------------------------------------------------------------

// PTTL returns the remaining time to live in milliseconds: -2 if the key
// doesn't exist, -1 if it exists but has no expiry.
func (ks *Keyspace) PTTL(key string) int64 {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, ok := ks.lookupLocked(key)
	if !ok {
		return -2
	}
	if e.expiresAt == 0 {
		return -1
	}
	remaining := e.expiresAt - nowMs()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// TTL is PTTL in whole seconds (rounded up), with the same sentinel
// values.
func (ks *Keyspace) TTL(key string) int64 {
	p := ks.PTTL(key)
	if p < 0 {
		return p
	}
	return (p + 999) / 1000
}

// PExpireTime returns the absolute expiry deadline in ms, or -2/-1 per
// the same convention as PTTL.
func (ks *Keyspace) PExpireTime(key string) int64 {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, ok := ks.lookupLocked(key)
	if !ok {
		return -2
	}
	if e.expiresAt == 0 {
		return -1
	}
	return e.expiresAt
}

// ExpireTime is PExpireTime in whole seconds.
func (ks *Keyspace) ExpireTime(key string) int64 {
	t := ks.PExpireTime(key)
	if t < 0 {
		return t
	}
	return t / 1000
}

// PExpireAt sets key's deadline to an absolute ms timestamp, subject to
// cond. Returns whether the deadline was changed.
func (ks *Keyspace) PExpireAt(key string, whenMs int64, cond ExpireCondition) (bool, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, ok := ks.lookupLocked(key)
	if !ok {
		return false, nil
	}
	if !expireConditionHolds(e.expiresAt, whenMs, cond) {
		return false, nil
	}
	e.expiresAt = whenMs
	ks.bumpVersion(e)
	if e.expired(nowMs()) {
		delete(ks.data, key)
	}
	return true, nil
}

func expireConditionHolds(current, next int64, cond ExpireCondition) bool {
	hasCurrent := current != 0
	switch cond {
	case ExpireAlways:
		return true
	case ExpireNX:
		return !hasCurrent
	case ExpireXX:
		return hasCurrent
	case ExpireGT:
		return hasCurrent && next > current
	case ExpireLT:
		return !hasCurrent || next < current
	default:
		return true
	}
}

// PExpire is PExpireAt with a relative millisecond offset.
func (ks *Keyspace) PExpire(key string, ms int64, cond ExpireCondition) (bool, error) {
	return ks.PExpireAt(key, nowMs()+ms, cond)
}

// ExpireAt is PExpireAt with a whole-second absolute timestamp.
func (ks *Keyspace) ExpireAt(key string, whenSec int64, cond ExpireCondition) (bool, error) {
	return ks.PExpireAt(key, whenSec*1000, cond)
}

// Expire is PExpire with a whole-second relative offset.
func (ks *Keyspace) Expire(key string, sec int64, cond ExpireCondition) (bool, error) {
	return ks.PExpire(key, sec*1000, cond)
}

// Persist clears key's deadline. Returns whether it had one to clear.
func (ks *Keyspace) Persist(key string) bool {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, ok := ks.lookupLocked(key)
	if !ok || e.expiresAt == 0 {
		return false
	}
	e.expiresAt = 0
	ks.bumpVersion(e)
	return true
}

// ---------------------------------------------------------------------
// List operations
// ---------------------------------------------------------------------

func (ks *Keyspace) getOrCreateList(key string) (*entry, error) {
	e, ok := ks.lookupLocked(key)
	if !ok {
		e = &entry{value: &Value{Kind: KindList}}
		ks.data[key] = e
		return e, nil
	}
	if e.value.Kind != KindList {
		return nil, ErrWrongType
	}
	return e, nil
}

// LPush prepends values (in argument order, so the last argument ends up
// at index 0) and returns the new length.
func (ks *Keyspace) LPush(key string, values ...[]byte) (int, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, err := ks.getOrCreateList(key)
	if err != nil {
		return 0, err
	}
	for _, v := range values {
		e.value.List = append([][]byte{append([]byte(nil), v...)}, e.value.List...)
	}
	ks.bumpVersion(e)
	return len(e.value.List), nil
}

// RPush appends values and returns the new length.
func (ks *Keyspace) RPush(key string, values ...[]byte) (int, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, err := ks.getOrCreateList(key)
	if err != nil {
		return 0, err
	}
	for _, v := range values {
		e.value.List = append(e.value.List, append([]byte(nil), v...))
	}
	ks.bumpVersion(e)
	return len(e.value.List), nil
}

// popList removes count items from the front (left=true) or back.
func (ks *Keyspace) popList(key string, count int, left bool) ([][]byte, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, ok := ks.lookupLocked(key)
	if !ok {
		return nil, nil
	}
	if e.value.Kind != KindList {
		return nil, ErrWrongType
	}
	if count > len(e.value.List) {
		count = len(e.value.List)
	}
	var out [][]byte
	if left {
		out = e.value.List[:count]
		e.value.List = e.value.List[count:]
	} else {
		n := len(e.value.List)
		out = make([][]byte, count)
		for i := 0; i < count; i++ {
			out[i] = e.value.List[n-1-i]
		}
		e.value.List = e.value.List[:n-count]
	}
	ks.bumpVersion(e)
	if len(e.value.List) == 0 {
		delete(ks.data, key)
	}
	return out, nil
}

// LPop removes and returns up to count items from the head.
func (ks *Keyspace) LPop(key string, count int) ([][]byte, error) {
	return ks.popList(key, count, true)
}

// RPop removes and returns up to count items from the tail.
func (ks *Keyspace) RPop(key string, count int) ([][]byte, error) {
	return ks.popList(key, count, false)
}

// normalizeRange implements the range-indexing convention shared by
// LRANGE and ZRANGE: negative indices
// count from the end, both bounds clamp into [0, n-1], and stop is
// inclusive.
func normalizeRange(start, stop, n int) (int, int, bool) {
	if n == 0 {
		return 0, 0, false
	}
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop > n-1 {
		stop = n - 1
	}
	if start > n-1 || stop < 0 || start > stop {
		return 0, 0, false
	}
	return start, stop, true
}

// LRange returns list[start..=stop] per the range-indexing convention.
func (ks *Keyspace) LRange(key string, start, stop int) ([][]byte, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, ok := ks.lookupLocked(key)
	if !ok {
		return nil, nil
	}
	if e.value.Kind != KindList {
		return nil, ErrWrongType
	}
	lo, hi, nonEmpty := normalizeRange(start, stop, len(e.value.List))
	if !nonEmpty {
		return nil, nil
	}
	out := make([][]byte, hi-lo+1)
	copy(out, e.value.List[lo:hi+1])
	return out, nil
}

// LLen returns the list's length, 0 if absent.
func (ks *Keyspace) LLen(key string) (int, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, ok := ks.lookupLocked(key)
	if !ok {
		return 0, nil
	}
	if e.value.Kind != KindList {
		return 0, ErrWrongType
	}
	return len(e.value.List), nil
}

// ---------------------------------------------------------------------
// Set operations
// ---------------------------------------------------------------------

func (ks *Keyspace) getOrCreateSet(key string) (*entry, error) {
	e, ok := ks.lookupLocked(key)
	if !ok {
		e = &entry{value: &Value{Kind: KindSet, Set: make(map[string]struct{})}}
		ks.data[key] = e
		return e, nil
	}
	if e.value.Kind != KindSet {
		return nil, ErrWrongType
	}
	return e, nil
}

// SAdd adds members, returning the count of members that weren't already
// present.
func (ks *Keyspace) SAdd(key string, members ...string) (int, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, err := ks.getOrCreateSet(key)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range members {
		if _, exists := e.value.Set[m]; !exists {
			e.value.Set[m] = struct{}{}
			n++
		}
	}
	ks.bumpVersion(e)
	return n, nil
}

// SRem removes members, returning the count actually removed.
func (ks *Keyspace) SRem(key string, members ...string) (int, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, ok := ks.lookupLocked(key)
	if !ok {
		return 0, nil
	}
	if e.value.Kind != KindSet {
		return 0, ErrWrongType
	}
	n := 0
	for _, m := range members {
		if _, exists := e.value.Set[m]; exists {
			delete(e.value.Set, m)
			n++
		}
	}
	ks.bumpVersion(e)
	if len(e.value.Set) == 0 {
		delete(ks.data, key)
	}
	return n, nil
}

// SIsMember reports whether member is in key's set.
func (ks *Keyspace) SIsMember(key, member string) (bool, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, ok := ks.lookupLocked(key)
	if !ok {
		return false, nil
	}
	if e.value.Kind != KindSet {
		return false, ErrWrongType
	}
	_, exists := e.value.Set[member]
	return exists, nil
}

// SMembers returns every member of key's set, in no particular order.
func (ks *Keyspace) SMembers(key string) ([]string, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, ok := ks.lookupLocked(key)
	if !ok {
		return nil, nil
	}
	if e.value.Kind != KindSet {
		return nil, ErrWrongType
	}
	out := make([]string, 0, len(e.value.Set))
	for m := range e.value.Set {
		out = append(out, m)
	}
	return out, nil
}

// SCard returns the cardinality of key's set, 0 if absent.
func (ks *Keyspace) SCard(key string) (int, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, ok := ks.lookupLocked(key)
	if !ok {
		return 0, nil
	}
	if e.value.Kind != KindSet {
		return 0, ErrWrongType
	}
	return len(e.value.Set), nil
}

// ---------------------------------------------------------------------
// Hash operations
// ---------------------------------------------------------------------

func (ks *Keyspace) getOrCreateHash(key string) (*entry, error) {
	e, ok := ks.lookupLocked(key)
	if !ok {
		e = &entry{value: &Value{Kind: KindHash, Hash: make(map[string][]byte)}}
		ks.data[key] = e
		return e, nil
	}
	if e.value.Kind != KindHash {
		return nil, ErrWrongType
	}
	return e, nil
}

// HSet sets the given field/value pairs, returning the count of fields
// that were newly created (not merely updated).
func (ks *Keyspace) HSet(key string, pairs map[string][]byte) (int, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, err := ks.getOrCreateHash(key)
	if err != nil {
		return 0, err
	}
	n := 0
	for f, v := range pairs {
		if _, exists := e.value.Hash[f]; !exists {
			n++
		}
		e.value.Hash[f] = append([]byte(nil), v...)
	}
	ks.bumpVersion(e)
	return n, nil
}

// HGet returns field's value, ok=false if the field or key is absent.
func (ks *Keyspace) HGet(key, field string) ([]byte, bool, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, ok := ks.lookupLocked(key)
	if !ok {
		return nil, false, nil
	}
	if e.value.Kind != KindHash {
		return nil, false, ErrWrongType
	}
	v, exists := e.value.Hash[field]
	return v, exists, nil
}

// HDel removes fields, returning the count actually removed.
func (ks *Keyspace) HDel(key string, fields ...string) (int, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, ok := ks.lookupLocked(key)
	if !ok {
		return 0, nil
	}
	if e.value.Kind != KindHash {
		return 0, ErrWrongType
	}
	n := 0
	for _, f := range fields {
		if _, exists := e.value.Hash[f]; exists {
			delete(e.value.Hash, f)
			n++
		}
	}
	ks.bumpVersion(e)
	if len(e.value.Hash) == 0 {
		delete(ks.data, key)
	}
	return n, nil
}

// HGetAll returns every field/value pair in key's hash.
func (ks *Keyspace) HGetAll(key string) (map[string][]byte, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, ok := ks.lookupLocked(key)
	if !ok {
		return nil, nil
	}
	if e.value.Kind != KindHash {
		return nil, ErrWrongType
	}
	out := make(map[string][]byte, len(e.value.Hash))
	for f, v := range e.value.Hash {
		out[f] = v
	}
	return out, nil
}

// HKeys returns key's field names.
func (ks *Keyspace) HKeys(key string) ([]string, error) {
	all, err := ks.HGetAll(key)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(all))
	for f := range all {
		out = append(out, f)
	}
	return out, nil
}

// HVals returns key's field values.
func (ks *Keyspace) HVals(key string) ([][]byte, error) {
	all, err := ks.HGetAll(key)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(all))
	for _, v := range all {
		out = append(out, v)
	}
	return out, nil
}

// HExists reports whether field exists in key's hash.
func (ks *Keyspace) HExists(key, field string) (bool, error) {
	_, ok, err := ks.HGet(key, field)
	return ok, err
}

// HLen returns the number of fields in key's hash.
func (ks *Keyspace) HLen(key string) (int, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, ok := ks.lookupLocked(key)
	if !ok {
		return 0, nil
	}
	if e.value.Kind != KindHash {
		return 0, ErrWrongType
	}
	return len(e.value.Hash), nil
}

// ---------------------------------------------------------------------
// Sorted set operations
// ---------------------------------------------------------------------

// zmember is one (member, score) pair.
type zmember struct {
	member string
	score  float64
}

// sortedSet keeps members sorted by (score, member) per the spec's total
// order, with a side index for O(1) score lookup. A slice is simpler to
// reason about and keep correct than a skip list at the scale this
// server targets; inserts are O(n) but the data model doesn't require
// better than that.
type sortedSet struct {
	members []zmember
	index   map[string]float64
}

func newSortedSet() *sortedSet {
	return &sortedSet{index: make(map[string]float64)}
}

func (z *sortedSet) clone() *sortedSet {
	out := &sortedSet{
		members: append([]zmember(nil), z.members...),
		index:   make(map[string]float64, len(z.index)),
	}
	for m, s := range z.index {
		out.index[m] = s
	}
	return out
}

func zless(a, b zmember) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.member < b.member
}

func (z *sortedSet) removeMember(member string) {
	for i, m := range z.members {
		if m.member == member {
			z.members = append(z.members[:i], z.members[i+1:]...)
			return
		}
	}
}

func (z *sortedSet) insert(member string, score float64) {
	m := zmember{member: member, score: score}
	i := sort.Search(len(z.members), func(i int) bool { return !zless(z.members[i], m) })
	z.members = append(z.members, zmember{})
	copy(z.members[i+1:], z.members[i:])
	z.members[i] = m
}

// ZMember is the exported (member, score) pair used by callers outside
// this package (internal/rdb's snapshot encoder) that need to walk a
// sorted set's contents without reaching into its unexported fields.
type ZMember struct {
	Member string
	Score  float64
}

// Members returns the sorted set's entries in (score, member) order.
func (z *sortedSet) Members() []ZMember {
	out := make([]ZMember, len(z.members))
	for i, m := range z.members {
		out[i] = ZMember{Member: m.member, Score: m.score}
	}
	return out
}

// NewZSetValue builds a KindSortedSet Value from a flat member list, for
// internal/rdb's loader to reconstruct a sorted set read off disk without
// replaying it through ZADD.
func NewZSetValue(members []ZMember) *Value {
	z := newSortedSet()
	for _, m := range members {
		z.insert(m.Member, m.Score)
		z.index[m.Member] = m.Score
	}
	return &Value{Kind: KindSortedSet, ZSet: z}
}

// ZAddFlags carries ZADD's exclusive option pairs (spec §4.B).
type ZAddFlags struct {
	NX, XX bool
	GT, LT bool
	CH     bool
}

func (ks *Keyspace) getOrCreateZSet(key string) (*entry, error) {
	e, ok := ks.lookupLocked(key)
	if !ok {
		e = &entry{value: &Value{Kind: KindSortedSet, ZSet: newSortedSet()}}
		ks.data[key] = e
		return e, nil
	}
	if e.value.Kind != KindSortedSet {
		return nil, ErrWrongType
	}
	return e, nil
}

// ZAdd adds or updates (member, score) pairs per flags, returning the
// count of members changed: additions only by default, or additions
// plus score updates when flags.CH is set.
func (ks *Keyspace) ZAdd(key string, flags ZAddFlags, pairs map[string]float64) (int, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, err := ks.getOrCreateZSet(key)
	if err != nil {
		return 0, err
	}
	z := e.value.ZSet
	changed := 0
	for member, score := range pairs {
		existing, had := z.index[member]
		if had && flags.NX {
			continue
		}
		if !had && flags.XX {
			continue
		}
		if had && flags.GT && score <= existing {
			continue
		}
		if had && flags.LT && score >= existing {
			continue
		}
		if had {
			if existing == score {
				continue
			}
			z.removeMember(member)
		}
		z.insert(member, score)
		z.index[member] = score
		if !had || flags.CH {
			changed++
		}
	}
	ks.bumpVersion(e)
	return changed, nil
}

// ZRem removes members, returning the count actually removed.
func (ks *Keyspace) ZRem(key string, members ...string) (int, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, ok := ks.lookupLocked(key)
	if !ok {
		return 0, nil
	}
	if e.value.Kind != KindSortedSet {
		return 0, ErrWrongType
	}
	z := e.value.ZSet
	n := 0
	for _, m := range members {
		if _, had := z.index[m]; had {
			z.removeMember(m)
			delete(z.index, m)
			n++
		}
	}
	ks.bumpVersion(e)
	if len(z.index) == 0 {
		delete(ks.data, key)
	}
	return n, nil
}

// ZRange returns members[start..=stop] in ascending (score, member)
// order, per the same range-indexing convention as LRANGE.
func (ks *Keyspace) ZRange(key string, start, stop int) ([]zmember, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, ok := ks.lookupLocked(key)
	if !ok {
		return nil, nil
	}
	if e.value.Kind != KindSortedSet {
		return nil, ErrWrongType
	}
	z := e.value.ZSet
	lo, hi, nonEmpty := normalizeRange(start, stop, len(z.members))
	if !nonEmpty {
		return nil, nil
	}
	out := make([]zmember, hi-lo+1)
	copy(out, z.members[lo:hi+1])
	return out, nil
}

// ScoreBound is one ZRANGEBYSCORE boundary: a value plus whether it's
// exclusive (the "(1.5" form).
type ScoreBound struct {
	Value     float64
	Exclusive bool
}

// ZRangeByScore returns every member whose score falls within [min, max]
// (or the open variants), ascending.
func (ks *Keyspace) ZRangeByScore(key string, min, max ScoreBound) ([]zmember, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, ok := ks.lookupLocked(key)
	if !ok {
		return nil, nil
	}
	if e.value.Kind != KindSortedSet {
		return nil, ErrWrongType
	}
	var out []zmember
	for _, m := range e.value.ZSet.members {
		if min.Exclusive {
			if m.score <= min.Value {
				continue
			}
		} else if m.score < min.Value {
			continue
		}
		if max.Exclusive {
			if m.score >= max.Value {
				continue
			}
		} else if m.score > max.Value {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// ZScore returns member's score, ok=false if absent.
func (ks *Keyspace) ZScore(key, member string) (float64, bool, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, ok := ks.lookupLocked(key)
	if !ok {
		return 0, false, nil
	}
	if e.value.Kind != KindSortedSet {
		return 0, false, ErrWrongType
	}
	score, exists := e.value.ZSet.index[member]
	return score, exists, nil
}

// ZCard returns the cardinality of key's sorted set, 0 if absent.
func (ks *Keyspace) ZCard(key string) (int, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, ok := ks.lookupLocked(key)
	if !ok {
		return 0, nil
	}
	if e.value.Kind != KindSortedSet {
		return 0, ErrWrongType
	}
	return len(e.value.ZSet.index), nil
}

// ---------------------------------------------------------------------
// Snapshot/dump support, used by internal/rdb and internal/aof's
// BGREWRITEAOF path.
// ---------------------------------------------------------------------

// KeyEntry is a read-only view of one keyspace entry, used by snapshot
// and replay code outside this package.
type KeyEntry struct {
	Key       string
	Value     *Value
	ExpiresAt int64 // 0 means no expiry
}

// Snapshot returns a point-in-time copy of every live entry. The copy is
// deep enough that the caller can serialize it without racing further
// mutation.
func (ks *Keyspace) Snapshot() []KeyEntry {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	now := nowMs()
	out := make([]KeyEntry, 0, len(ks.data))
	for k, e := range ks.data {
		if e.expired(now) {
			delete(ks.data, k)
			continue
		}
		out = append(out, KeyEntry{Key: k, Value: cloneValue(e.value), ExpiresAt: e.expiresAt})
	}
	return out
}

// Restore installs entries into the keyspace, overwriting anything
// already there. Used by RDB load and replica bootstrap.
func (ks *Keyspace) Restore(entries []KeyEntry) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.data = make(map[string]*entry, len(entries))
	for _, ke := range entries {
		e := &entry{value: ke.Value, expiresAt: ke.ExpiresAt}
		ks.bumpVersion(e)
		ks.data[ke.Key] = e
	}
}

// DumpCommands renders the keyspace as a sequence of write commands
// that would reconstruct it, for BGREWRITEAOF. Order is not significant
// since each key is independent.
func (ks *Keyspace) DumpCommands() [][]string {
	snap := ks.Snapshot()
	var cmds [][]string
	for _, ke := range snap {
		switch ke.Value.Kind {
		case KindString:
			cmds = append(cmds, []string{"SET", ke.Key, string(ke.Value.Str)})
		case KindList:
			args := append([]string{"RPUSH", ke.Key}, bytesToStrings(ke.Value.List)...)
			cmds = append(cmds, args)
		case KindSet:
			args := []string{"SADD", ke.Key}
			for m := range ke.Value.Set {
				args = append(args, m)
			}
			cmds = append(cmds, args)
		case KindHash:
			args := []string{"HSET", ke.Key}
			for f, v := range ke.Value.Hash {
				args = append(args, f, string(v))
			}
			cmds = append(cmds, args)
		case KindSortedSet:
			args := []string{"ZADD", ke.Key}
			for _, m := range ke.Value.ZSet.members {
				args = append(args, formatScore(m.score), m.member)
			}
			cmds = append(cmds, args)
		}
		if ke.ExpiresAt != 0 {
			cmds = append(cmds, []string{"PEXPIREAT", ke.Key, formatInt(ke.ExpiresAt)})
		}
	}
	return cmds
}

func bytesToStrings(bs [][]byte) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = string(b)
	}
	return out
}

func formatScore(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	return s
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}
