// Package rdb implements point-in-time snapshot persistence for a
// redkit.Keyspace: a compact binary encoding of every live key, loadable
// back into a fresh keyspace on restart or replica bootstrap.
package rdb

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	"github.com/redkit/redkit"
)

func uint64FromFloat(f float64) uint64 { return math.Float64bits(f) }
func floatFromUint64(u uint64) float64 { return math.Float64frombits(u) }

const (
	magic   = "RDKT"
	version = 1
)

// Value type tags, one byte each, written ahead of every entry's payload.
const (
	tagString byte = iota
	tagList
	tagSet
	tagHash
	tagSortedSet
)

// Encode renders a full snapshot of ks as the on-disk/on-wire RDB byte
// format, including its trailing checksum. internal/replication reuses
// this for PSYNC's bulk transfer, framing the result as `$<len>\r\n<bytes>`
// exactly as it would a file load.
func Encode(ks *redkit.Keyspace) ([]byte, error) {
	var buf bufferWriter
	h := xxhash.New()
	w := io.MultiWriter(&buf, h)
	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString(magic); err != nil {
		return nil, errors.Wrap(err, "write rdb magic")
	}
	if err := bw.WriteByte(version); err != nil {
		return nil, errors.Wrap(err, "write rdb version")
	}
	for _, ke := range ks.Snapshot() {
		if err := writeEntry(bw, ke); err != nil {
			return nil, errors.Wrap(err, "write rdb entry")
		}
	}
	if err := bw.WriteByte(0xFF); err != nil {
		return nil, errors.Wrap(err, "write rdb terminator")
	}
	if err := bw.Flush(); err != nil {
		return nil, errors.Wrap(err, "flush rdb buffer")
	}

	var sumBytes [8]byte
	binary.LittleEndian.PutUint64(sumBytes[:], h.Sum64())
	buf.Write(sumBytes[:])
	return buf.Bytes(), nil
}

// bufferWriter is the minimal io.Writer this package needs to accumulate
// an encoded snapshot in memory without pulling in bytes.Buffer's wider
// API surface.
type bufferWriter struct{ b []byte }

func (w *bufferWriter) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}
func (w *bufferWriter) Bytes() []byte { return w.b }

// Save snapshots ks and writes it to path, replacing any existing file
// only after the new one has been fully written and flushed (write to a
// temp file, rename into place), so a crash mid-save never corrupts the
// previous snapshot.
func Save(path string, ks *redkit.Keyspace) error {
	data, err := Encode(ks)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "create rdb temp file %s", tmp)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return errors.Wrap(err, "write rdb temp file")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrap(err, "fsync rdb file")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close rdb temp file")
	}
	return errors.Wrap(os.Rename(tmp, path), "rename rdb temp file into place")
}

func writeEntry(w *bufio.Writer, ke redkit.KeyEntry) error {
	if ke.ExpiresAt != 0 {
		w.WriteByte(1)
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(ke.ExpiresAt))
		w.Write(b[:])
	} else {
		w.WriteByte(0)
	}

	v := ke.Value
	switch v.Kind {
	case redkit.KindString:
		w.WriteByte(tagString)
		writeBytes(w, []byte(ke.Key))
		writeBytes(w, v.Str)
	case redkit.KindList:
		w.WriteByte(tagList)
		writeBytes(w, []byte(ke.Key))
		writeVarint(w, uint64(len(v.List)))
		for _, item := range v.List {
			writeBytes(w, item)
		}
	case redkit.KindSet:
		w.WriteByte(tagSet)
		writeBytes(w, []byte(ke.Key))
		writeVarint(w, uint64(len(v.Set)))
		for member := range v.Set {
			writeBytes(w, []byte(member))
		}
	case redkit.KindHash:
		w.WriteByte(tagHash)
		writeBytes(w, []byte(ke.Key))
		writeVarint(w, uint64(len(v.Hash)))
		for field, val := range v.Hash {
			writeBytes(w, []byte(field))
			writeBytes(w, val)
		}
	case redkit.KindSortedSet:
		w.WriteByte(tagSortedSet)
		writeBytes(w, []byte(ke.Key))
		members := v.ZSet.Members()
		writeVarint(w, uint64(len(members)))
		for _, m := range members {
			writeBytes(w, []byte(m.Member))
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], uint64FromFloat(m.Score))
			w.Write(b[:])
		}
	default:
		return errors.Errorf("rdb: unknown value kind %v for key %q", v.Kind, ke.Key)
	}
	return nil
}

func writeVarint(w *bufio.Writer, n uint64) {
	var buf [binary.MaxVarintLen64]byte
	k := binary.PutUvarint(buf[:], n)
	w.Write(buf[:k])
}

func writeBytes(w *bufio.Writer, b []byte) {
	writeVarint(w, uint64(len(b)))
	w.Write(b)
}

// Load reads the snapshot at path and restores it into ks. A missing
// file is not an error — it means there is nothing to load yet, the same
// convention real Redis uses for a fresh data directory.
func Load(path string, ks *redkit.Keyspace) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "open rdb file %s", path)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return errors.Wrap(err, "read rdb file")
	}
	return Decode(raw, ks)
}

// Decode parses a full in-memory RDB image (as produced by Encode) and
// restores it into ks, verifying the trailing checksum first. Used both
// by Load and by a replica applying the bulk payload it receives during
// a PSYNC full resync.
func Decode(raw []byte, ks *redkit.Keyspace) error {
	if len(raw) < len(magic)+1+1+8 {
		return errors.New("rdb: file too short")
	}

	body := raw[:len(raw)-8]
	wantSum := binary.LittleEndian.Uint64(raw[len(raw)-8:])
	if gotSum := xxhash.Sum64(body); gotSum != wantSum {
		return errors.New("rdb: checksum mismatch")
	}

	r := &byteReader{buf: body}
	hdr, err := r.take(len(magic))
	if err != nil || string(hdr) != magic {
		return errors.New("rdb: bad magic")
	}
	ver, err := r.byte()
	if err != nil {
		return errors.Wrap(err, "rdb: read version")
	}
	if ver != version {
		return errors.Errorf("rdb: unsupported version %d", ver)
	}

	var entries []redkit.KeyEntry
	for {
		peek, err := r.byte()
		if err != nil {
			return errors.Wrap(err, "rdb: read entry")
		}
		if peek == 0xFF {
			break
		}
		r.pos-- // not the terminator — rewind so readEntry sees its own has-expiry byte
		ke, err := readEntry(r)
		if err != nil {
			return errors.Wrap(err, "rdb: read entry")
		}
		entries = append(entries, ke)
	}

	ks.Restore(entries)
	return nil
}

func readEntry(r *byteReader) (redkit.KeyEntry, error) {
	hasExpiry, err := r.byte()
	if err != nil {
		return redkit.KeyEntry{}, err
	}
	var expiresAt int64
	if hasExpiry == 1 {
		b, err := r.take(8)
		if err != nil {
			return redkit.KeyEntry{}, err
		}
		expiresAt = int64(binary.LittleEndian.Uint64(b))
	}

	tag, err := r.byte()
	if err != nil {
		return redkit.KeyEntry{}, err
	}
	keyBytes, err := r.bytes()
	if err != nil {
		return redkit.KeyEntry{}, err
	}
	key := string(keyBytes)

	var value *redkit.Value
	switch tag {
	case tagString:
		b, err := r.bytes()
		if err != nil {
			return redkit.KeyEntry{}, err
		}
		value = &redkit.Value{Kind: redkit.KindString, Str: b}
	case tagList:
		n, err := r.varint()
		if err != nil {
			return redkit.KeyEntry{}, err
		}
		list := make([][]byte, n)
		for i := range list {
			list[i], err = r.bytes()
			if err != nil {
				return redkit.KeyEntry{}, err
			}
		}
		value = &redkit.Value{Kind: redkit.KindList, List: list}
	case tagSet:
		n, err := r.varint()
		if err != nil {
			return redkit.KeyEntry{}, err
		}
		set := make(map[string]struct{}, n)
		for i := uint64(0); i < n; i++ {
			b, err := r.bytes()
			if err != nil {
				return redkit.KeyEntry{}, err
			}
			set[string(b)] = struct{}{}
		}
		value = &redkit.Value{Kind: redkit.KindSet, Set: set}
	case tagHash:
		n, err := r.varint()
		if err != nil {
			return redkit.KeyEntry{}, err
		}
		hash := make(map[string][]byte, n)
		for i := uint64(0); i < n; i++ {
			field, err := r.bytes()
			if err != nil {
				return redkit.KeyEntry{}, err
			}
			val, err := r.bytes()
			if err != nil {
				return redkit.KeyEntry{}, err
			}
			hash[string(field)] = val
		}
		value = &redkit.Value{Kind: redkit.KindHash, Hash: hash}
	case tagSortedSet:
		n, err := r.varint()
		if err != nil {
			return redkit.KeyEntry{}, err
		}
		members := make([]redkit.ZMember, n)
		for i := range members {
			m, err := r.bytes()
			if err != nil {
				return redkit.KeyEntry{}, err
			}
			b, err := r.take(8)
			if err != nil {
				return redkit.KeyEntry{}, err
			}
			members[i] = redkit.ZMember{Member: string(m), Score: floatFromUint64(binary.LittleEndian.Uint64(b))}
		}
		value = redkit.NewZSetValue(members)
	default:
		return redkit.KeyEntry{}, errors.Errorf("rdb: unknown type tag %d", tag)
	}

	return redkit.KeyEntry{Key: key, Value: value, ExpiresAt: expiresAt}, nil
}

// byteReader is a minimal cursor over an in-memory buffer; rdb files are
// small enough (a keyspace snapshot, not a write-ahead log) to load
// whole rather than stream.
type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) byte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *byteReader) take(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, io.ErrUnexpectedEOF
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *byteReader) varint() (uint64, error) {
	n, k := binary.Uvarint(r.buf[r.pos:])
	if k <= 0 {
		return 0, errors.New("rdb: bad varint")
	}
	r.pos += k
	return n, nil
}

func (r *byteReader) bytes() ([]byte, error) {
	n, err := r.varint()
	if err != nil {
		return nil, err
	}
	return r.take(int(n))
}
