package mqttflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPayloadKinds(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		p := EmptyPayload()
		assert.True(t, p.IsEmpty())
		assert.Equal(t, PayloadEmpty, p.Kind())
		assert.Nil(t, p.Bytes())
		assert.Zero(t, p.Len())
		assert.Equal(t, "empty", p.String())

		_, ok := p.Text()
		assert.False(t, ok)
		assert.Equal(t, Payload{}, p)
	})

	t.Run("bytes", func(t *testing.T) {
		src := []byte{0xFF, 0x00}
		p := BytesPayload(src)
		src[0] = 0x01

		assert.Equal(t, PayloadBytes, p.Kind())
		assert.Equal(t, []byte{0xFF, 0x00}, p.Bytes())
		assert.Equal(t, 2, p.Len())
		assert.Equal(t, "2 bytes", p.String())

		_, ok := p.Text()
		assert.False(t, ok)
		_, ok = p.ContentType()
		assert.False(t, ok)
	})

	t.Run("empty bytes", func(t *testing.T) {
		assert.True(t, BytesPayload(nil).IsEmpty())
		assert.True(t, BytesPayload([]byte{}).IsEmpty())
	})

	t.Run("utf-8 bytes decode as text", func(t *testing.T) {
		text, ok := BytesPayload([]byte("héllo")).Text()
		assert.True(t, ok)
		assert.Equal(t, "héllo", text)
	})

	t.Run("string", func(t *testing.T) {
		p := StringPayload("on")
		assert.Equal(t, PayloadString, p.Kind())
		assert.Equal(t, []byte("on"), p.Bytes())
		assert.Equal(t, "on", p.String())

		_, ok := p.ContentType()
		assert.False(t, ok)
	})

	t.Run("string with content type", func(t *testing.T) {
		base := StringPayload(`{"on":true}`)
		p := base.WithContentType("application/json")

		ct, ok := p.ContentType()
		assert.True(t, ok)
		assert.Equal(t, "application/json", ct)
		assert.Equal(t, `application/json: {"on":true}`, p.String())

		_, ok = base.ContentType()
		assert.False(t, ok, "original payload must stay unchanged")
	})

	t.Run("content type ignored on bytes", func(t *testing.T) {
		p := BytesPayload([]byte{1}).WithContentType("text/plain")
		_, ok := p.ContentType()
		assert.False(t, ok)
		assert.Equal(t, "1 byte", p.String())
	})
}

func TestPayloadKindString(t *testing.T) {
	assert.Equal(t, "empty", PayloadEmpty.String())
	assert.Equal(t, "bytes", PayloadBytes.String())
	assert.Equal(t, "string", PayloadString.String())
	assert.Equal(t, "unknown", PayloadKind(9).String())
}

func TestQoS(t *testing.T) {
	tests := []struct {
		qos   QoS
		str   string
		valid bool
	}{
		{QoS0, "at most once", true},
		{QoS1, "at least once", true},
		{QoS2, "exactly once", true},
		{QoS(3), "invalid", false},
	}

	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			assert.Equal(t, tt.str, tt.qos.String())
			assert.Equal(t, tt.valid, tt.qos.Valid())
		})
	}
}
