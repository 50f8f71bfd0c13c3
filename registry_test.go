package xeda

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportRegistry(t *testing.T) {
	require.NoError(t, RegisterTransport("fake-registry", func(cfg map[string]any) (Transport, error) {
		if cfg["fail"] == true {
			return nil, errors.New("bad settings")
		}
		return newFakeTransport(), nil
	}))
	assert.Error(t, RegisterTransport("", nil))
	assert.Contains(t, Transports(), "fake-registry")

	tr, err := NewTransport("fake-registry", nil)
	require.NoError(t, err)
	assert.NotNil(t, tr)

	_, err = NewTransport("fake-registry", map[string]any{"fail": true})
	assert.ErrorContains(t, err, "fake-registry")

	_, err = NewTransport("absent", nil)
	assert.Equal(t, "unknown transport: absent", err.Error())
}

func TestCodecRegistry(t *testing.T) {
	c, err := NewCodec("json")
	require.NoError(t, err)
	assert.Equal(t, "json", c.Name())

	require.NoError(t, RegisterCodec("json-alias", func() Codec { return JSONCodec{} }))
	_, err = NewCodec("json-alias")
	assert.NoError(t, err)

	_, err = NewCodec("gob")
	assert.Error(t, err)
}
