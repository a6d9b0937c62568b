package sse

import (
	"io"

	"github.com/tidwall/sjson"
)

// Frame encodes one content delta as a data line terminated by a blank
// line.
func Frame(content string) []byte {
	payload, err := sjson.SetBytes(nil, "content", content)
	if err != nil {
		// sjson only fails on an invalid path
		panic(err)
	}
	out := make([]byte, 0, len(dataPrefix)+len(payload)+2)
	out = append(out, dataPrefix...)
	out = append(out, payload...)
	return append(out, '\n', '\n')
}

// DoneFrame is the terminating frame of a stream.
func DoneFrame() []byte {
	return []byte(dataPrefix + doneSentinel + "\n\n")
}

// WriteFrame writes one content frame to w.
func WriteFrame(w io.Writer, content string) error {
	_, err := w.Write(Frame(content))
	return err
}

// WriteDone writes the terminating frame to w.
func WriteDone(w io.Writer) error {
	_, err := w.Write(DoneFrame())
	return err
}
