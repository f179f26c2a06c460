package sse

import (
	"bytes"
	"io"
	"strings"
	"testing"

	ginsse "github.com/gin-contrib/sse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoder_NamedEvents(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ginsse.Encode(&buf, ginsse.Event{Event: "connected", Data: "ok"}))
	require.NoError(t, ginsse.Encode(&buf, ginsse.Event{
		Event: "stats-update",
		Id:    "7",
		Data:  map[string]int{"unreadCount": 2, "totalCount": 9},
	}))

	dec := NewDecoder(&buf)

	ev, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "connected", ev.Name)
	assert.Equal(t, "ok", string(ev.Data))

	ev, err = dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "stats-update", ev.Name)
	assert.Equal(t, "7", ev.ID)
	assert.JSONEq(t, `{"unreadCount":2,"totalCount":9}`, string(ev.Data))
	assert.Equal(t, "7", dec.LastEventID())

	_, err = dec.Next()
	assert.Equal(t, io.EOF, err)
}

func TestDecoder_FramingRules(t *testing.T) {
	stream := strings.Join([]string{
		": keep-alive",
		"",
		"data: first",
		"data: second",
		"",
		"event: notification\r",
		"data:{\"id\":1}\r",
		"retry: 3000\r",
		"\r",
		"event: dangling",
		"data: never dispatched",
	}, "\n")

	dec := NewDecoder(strings.NewReader(stream))

	ev, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, DefaultEvent, ev.Name)
	assert.Equal(t, "first\nsecond", string(ev.Data))

	ev, err = dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "notification", ev.Name)
	assert.Equal(t, `{"id":1}`, string(ev.Data))
	assert.Equal(t, 3000, ev.Retry)

	_, err = dec.Next()
	assert.Equal(t, io.EOF, err)
}

func TestDecoder_EventWithoutDataIsSkipped(t *testing.T) {
	dec := NewDecoder(strings.NewReader("event: ping\n\nevent: notification\ndata: x\n\n"))

	ev, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "notification", ev.Name)
}

func TestDecoder_PropagatesReaderError(t *testing.T) {
	r := io.MultiReader(strings.NewReader("data: partial"), iotest{err: io.ErrUnexpectedEOF})
	_, err := NewDecoder(r).Next()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

type iotest struct{ err error }

func (r iotest) Read([]byte) (int, error) { return 0, r.err }

func TestDecoder_SizeLimit(t *testing.T) {
	endless := io.LimitReader(repeatReader('x'), 1<<20)
	_, err := NewDecoderSize(endless, 64).Next()
	assert.ErrorIs(t, err, ErrTooLarge)

	many := strings.Repeat("data: 0123456789\n", 10) + "\n"
	_, err = NewDecoderSize(strings.NewReader(many), 64).Next()
	assert.ErrorIs(t, err, ErrTooLarge)

	ev, err := NewDecoderSize(strings.NewReader("data: "+strings.Repeat("y", 40)+"\n\n"), 64).Next()
	require.NoError(t, err)
	assert.Len(t, ev.Data, 40)
}

type repeatReader byte

func (r repeatReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r)
	}
	return len(p), nil
}
