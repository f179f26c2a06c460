// Package sse decodes text/event-stream bodies incrementally.
package sse

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
)

// DefaultEvent is the event name used when a frame carries no "event" field.
const DefaultEvent = "message"

// Event is one dispatched server-sent event.
type Event struct {
	ID    string
	Name  string
	Data  []byte
	Retry int
}

// DefaultMaxSize bounds a single line and the data of a single event.
const DefaultMaxSize = 1 << 20

// ErrTooLarge is returned when a line or an event's data exceeds the
// decoder's size limit. The stream cannot be resynchronised afterwards.
var ErrTooLarge = errors.New("sse: line or event exceeds size limit")

// Decoder reads events from a stream one frame at a time. It holds at most
// one line and the current event's data, each capped at the size limit, so
// it can sit directly on a long-lived body.
type Decoder struct {
	r       *bufio.Reader
	maxSize int
	line    []byte

	lastID string
}

func NewDecoder(r io.Reader) *Decoder {
	return NewDecoderSize(r, DefaultMaxSize)
}

// NewDecoderSize is NewDecoder with a custom size limit; max <= 0 uses
// DefaultMaxSize.
func NewDecoderSize(r io.Reader, max int) *Decoder {
	if max <= 0 {
		max = DefaultMaxSize
	}
	return &Decoder{r: bufio.NewReader(r), maxSize: max}
}

// readLine returns the next line including its terminator. The slice is only
// valid until the next call.
func (d *Decoder) readLine() ([]byte, error) {
	d.line = d.line[:0]
	for {
		chunk, err := d.r.ReadSlice('\n')
		if len(d.line)+len(chunk) > d.maxSize {
			return nil, ErrTooLarge
		}
		d.line = append(d.line, chunk...)
		if err == nil {
			return d.line, nil
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return nil, err
		}
	}
}

// Next blocks until a complete event is available. A frame left unterminated
// when the stream ends is discarded; the error is then whatever the reader
// returned (io.EOF for a clean end).
func (d *Decoder) Next() (*Event, error) {
	var (
		name    string
		data    bytes.Buffer
		hasData bool
		retry   int
	)

	for {
		line, err := d.readLine()
		if err != nil {
			return nil, err
		}
		line = bytes.TrimRight(line, "\r\n")

		if len(line) == 0 {
			if !hasData {
				name, retry = "", 0
				continue
			}
			if name == "" {
				name = DefaultEvent
			}
			return &Event{
				ID:    d.lastID,
				Name:  name,
				Data:  data.Bytes(),
				Retry: retry,
			}, nil
		}

		// comment / keep-alive
		if line[0] == ':' {
			continue
		}

		field, value := line, []byte(nil)
		if i := bytes.IndexByte(line, ':'); i >= 0 {
			field, value = line[:i], line[i+1:]
			if len(value) > 0 && value[0] == ' ' {
				value = value[1:]
			}
		}

		switch string(field) {
		case "event":
			name = string(value)
		case "data":
			if data.Len()+len(value)+1 > d.maxSize {
				return nil, ErrTooLarge
			}
			if hasData {
				data.WriteByte('\n')
			}
			data.Write(value)
			hasData = true
		case "id":
			if bytes.IndexByte(value, 0) < 0 {
				d.lastID = string(value)
			}
		case "retry":
			if n, err := strconv.Atoi(string(value)); err == nil {
				retry = n
			}
		}
	}
}

// LastEventID is the most recent id field seen on the stream.
func (d *Decoder) LastEventID() string {
	return d.lastID
}
