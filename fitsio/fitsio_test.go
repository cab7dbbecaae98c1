package fitsio_test

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WitIOT/tao/array"
	"github.com/WitIOT/tao/fitsio"
)

func roundTrip(t *testing.T, a *array.Array) *array.Array {
	t.Helper()
	codec := fitsio.NewSimpleCodec()

	var buf bytes.Buffer
	require.NoError(t, codec.Save(&buf, a, nil))

	got, err := codec.Load(&buf, nil)
	require.NoError(t, err)
	return got
}

func Test_RoundTripUint16Image(t *testing.T) {
	a, err := array.New(array.Uint16, 4, 3)
	require.NoError(t, err)
	val := 0.0
	for j := int64(0); j < 3; j++ {
		for i := int64(0); i < 4; i++ {
			a.Set(val, i, j)
			val++
		}
	}

	got := roundTrip(t, a)
	assert.Equal(t, array.Uint16, got.Eltype)
	assert.Equal(t, a.Ndims, got.Ndims)
	for j := int64(0); j < 3; j++ {
		for i := int64(0); i < 4; i++ {
			assert.Equal(t, a.At(i, j), got.At(i, j))
		}
	}
}

func Test_RoundTripInt16NegativeValues(t *testing.T) {
	a, err := array.New(array.Int16, 2, 2)
	require.NoError(t, err)
	a.Set(-1234, 0, 0)
	a.Set(5678, 1, 0)
	a.Set(-1, 0, 1)
	a.Set(32000, 1, 1)

	got := roundTrip(t, a)
	assert.Equal(t, array.Int16, got.Eltype)
	assert.Equal(t, -1234.0, got.At(0, 0))
	assert.Equal(t, 5678.0, got.At(1, 0))
	assert.Equal(t, -1.0, got.At(0, 1))
	assert.Equal(t, 32000.0, got.At(1, 1))
}

func Test_RoundTripFloat32PreservesNaN(t *testing.T) {
	a, err := array.New(array.Float32, 2)
	require.NoError(t, err)
	a.Set(1.5, 0)
	a.Set(math.NaN(), 1)

	got := roundTrip(t, a)
	assert.Equal(t, array.Float32, got.Eltype)
	assert.InDelta(t, 1.5, got.At(0), 1e-6)
	assert.True(t, math.IsNaN(got.At(1)))
}

func Test_EditCallbackAppliesExtraCardsOnSave(t *testing.T) {
	a, err := array.New(array.Uint8, 3)
	require.NoError(t, err)

	codec := fitsio.NewSimpleCodec()
	var buf bytes.Buffer
	err = codec.Save(&buf, a, func(h *fitsio.Header) error {
		h.Extname = "DARK"
		h.Extra = append(h.Extra, fitsio.Card{Key: "OBSERVER", Value: "'tester'"})
		return nil
	})
	require.NoError(t, err)

	var seenExtname string
	_, err = codec.Load(&buf, func(h *fitsio.Header) error {
		seenExtname = h.Extname
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "DARK", seenExtname)
}

func Test_SaveRejectsBitpixChangeFromEditCallback(t *testing.T) {
	a, err := array.New(array.Uint8, 3)
	require.NoError(t, err)

	codec := fitsio.NewSimpleCodec()
	var buf bytes.Buffer
	err = codec.Save(&buf, a, func(h *fitsio.Header) error {
		h.Bitpix = 16
		return nil
	})
	assert.Error(t, err)
}
