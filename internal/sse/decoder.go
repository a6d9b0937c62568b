// Package sse decodes the server-sent event stream of a streaming
// generation into content deltas, and encodes it on the serving side.
package sse

import (
	"bytes"
	"errors"
	"io"
	"iter"
	"sync/atomic"

	"github.com/tidwall/gjson"
)

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"

	// DefaultChunkSize is the read size used by Deltas.
	DefaultChunkSize = 4096
)

// ErrReused is yielded when a decoded sequence is ranged over twice.
var ErrReused = errors.New("sse: decoder sequence already consumed")

// Decoder turns arbitrarily split chunks into content deltas. A logical
// line may span several chunks; the incomplete tail is carried over.
// The zero value is ready to use.
type Decoder struct {
	carry []byte
	done  bool
}

// Feed consumes one chunk and returns the deltas of every line it
// completes. done reports that the [DONE] sentinel was seen; later
// input is ignored.
func (d *Decoder) Feed(chunk []byte) (deltas []string, done bool) {
	if d.done {
		return nil, true
	}
	d.carry = append(d.carry, chunk...)
	for {
		i := bytes.IndexByte(d.carry, '\n')
		if i < 0 {
			break
		}
		line := d.carry[:i]
		d.carry = d.carry[i+1:]
		delta, ok, stop := parseLine(line)
		if stop {
			d.done = true
			d.carry = nil
			return deltas, true
		}
		if ok {
			deltas = append(deltas, delta)
		}
	}
	if len(d.carry) == 0 {
		d.carry = nil
	}
	return deltas, false
}

// Flush treats any unterminated trailing line as complete. It is called
// once the transport has closed.
func (d *Decoder) Flush() (deltas []string, done bool) {
	if d.done || len(d.carry) == 0 {
		return nil, d.done
	}
	line := d.carry
	d.carry = nil
	delta, ok, stop := parseLine(line)
	if stop {
		d.done = true
		return nil, true
	}
	if ok {
		return []string{delta}, false
	}
	return nil, false
}

// Done reports whether the sentinel has been seen.
func (d *Decoder) Done() bool { return d.done }

func parseLine(line []byte) (delta string, ok, stop bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	payload, found := bytes.CutPrefix(line, []byte(dataPrefix))
	if !found {
		return "", false, false
	}
	if string(payload) == doneSentinel {
		return "", false, true
	}
	// a frame split mid-JSON or a frame without string content is skipped
	if !gjson.ValidBytes(payload) {
		return "", false, false
	}
	root := gjson.ParseBytes(payload)
	if !root.IsObject() {
		return "", false, false
	}
	content := root.Get("content")
	if content.Type != gjson.String {
		return "", false, false
	}
	return content.String(), true, false
}

// Decode lazily decodes chunks into content deltas. The sequence ends at
// the [DONE] sentinel, at the end of chunks, or on the first chunk error,
// which is yielded once. It can be ranged over only once.
func Decode(chunks iter.Seq2[[]byte, error]) iter.Seq2[string, error] {
	var used atomic.Bool
	return func(yield func(string, error) bool) {
		if used.Swap(true) {
			yield("", ErrReused)
			return
		}
		var dec Decoder
		for chunk, err := range chunks {
			if err != nil {
				yield("", err)
				return
			}
			deltas, done := dec.Feed(chunk)
			for _, delta := range deltas {
				if !yield(delta, nil) {
					return
				}
			}
			if done {
				return
			}
		}
		deltas, _ := dec.Flush()
		for _, delta := range deltas {
			if !yield(delta, nil) {
				return
			}
		}
	}
}

// ReadChunks reads r in chunks of at most size bytes. io.EOF ends the
// sequence; any other read error is yielded.
func ReadChunks(r io.Reader, size int) iter.Seq2[[]byte, error] {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return func(yield func([]byte, error) bool) {
		buf := make([]byte, size)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				if !yield(chunk, nil) {
					return
				}
			}
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
		}
	}
}

// Deltas decodes the content deltas of a raw event stream body.
func Deltas(r io.Reader) iter.Seq2[string, error] {
	return Decode(ReadChunks(r, DefaultChunkSize))
}
