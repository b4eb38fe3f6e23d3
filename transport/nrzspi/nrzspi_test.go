package nrzspi

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/spi/spitest"

	"github.com/Jon-Bright/rmtled/pixarray"
)

func TestShow(t *testing.T) {
	s, err := pixarray.NewStrip(3, 4, 32)
	require.NoError(t, err)
	buf := bytes.Buffer{}
	sink, err := New(spitest.NewRecordRaw(&buf), s, 0)
	require.NoError(t, err)
	assert.Equal(t, "nrzled{recordraw}", sink.String())

	require.NoError(t, sink.Show())
	dark := append([]byte(nil), buf.Bytes()...)
	assert.NotEmpty(t, dark)

	buf.Reset()
	s.SetPixel(2, 0xff, 0x80, 0x01)
	require.NoError(t, sink.Show())
	lit := buf.Bytes()
	assert.Len(t, lit, len(dark))
	assert.NotEqual(t, dark, lit)

	buf.Reset()
	s.SetAll(pixarray.Pixel{})
	require.NoError(t, sink.Show())
	assert.Equal(t, dark, buf.Bytes())
}

func TestEmptyStrip(t *testing.T) {
	_, err := New(spitest.NewRecordRaw(&bytes.Buffer{}), &pixarray.Strip{}, 0)
	assert.Error(t, err)
	_, err = New(spitest.NewRecordRaw(&bytes.Buffer{}), nil, 0)
	assert.Error(t, err)
}
