package pixel_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WitIOT/tao/array"
	"github.com/WitIOT/tao/pixel"
)

func constArray(t *testing.T, n int, v float64) []byte {
	t.Helper()
	a, err := array.New(array.Float64, int64(n))
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		a.Set(v, int64(i))
	}
	return a.Data
}

func Test_EncodingFieldRoundTrip(t *testing.T) {
	e := pixel.NewEncoding(pixel.BayerRGGB, 10, 16, pixel.FlagMSBPadding|pixel.FlagAndorCoded)
	assert.Equal(t, pixel.BayerRGGB, e.Colorant())
	assert.Equal(t, uint8(10), e.BitsPerPacket())
	assert.Equal(t, uint8(16), e.BitsPerPixel())
	assert.Equal(t, pixel.FlagMSBPadding|pixel.FlagAndorCoded, e.Flags())
}

func Test_RawTypeOfRequiredEncodings(t *testing.T) {
	cases := []struct {
		enc  pixel.Encoding
		want pixel.RawType
	}{
		{pixel.Mono8, pixel.RawUint8},
		{pixel.Mono16, pixel.RawUint16},
		{pixel.Mono32, pixel.RawUint32},
		{pixel.MonoP12, pixel.RawPacked12},
	}
	for _, c := range cases {
		got, err := pixel.RawTypeOf(c.enc)
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
	}
}

func Test_RawTypeOfRejectsColor(t *testing.T) {
	_, err := pixel.RawTypeOf(pixel.NewEncoding(pixel.RGB, 24, 24, 0))
	assert.Error(t, err)
}

func Test_PreprocessLevelNoneConverts(t *testing.T) {
	raw := []byte{10, 20, 30, 40}
	out, err := pixel.Preprocess(pixel.Inputs{
		Raw: raw, RawType: pixel.RawUint8, Width: 2, Height: 2,
		Level: pixel.LevelNone, OutType: array.Float64,
	})
	require.NoError(t, err)

	dat, err := array.New(array.Float64, 4)
	require.NoError(t, err)
	copy(dat.Data, out.Dat)
	assert.Equal(t, float64(10), dat.At(0))
	assert.Equal(t, float64(40), dat.At(3))
	assert.Nil(t, out.Wgt)
}

func Test_PreprocessLevelAffine(t *testing.T) {
	raw := []byte{100, 200}
	a := constArray(t, 2, 2.0)
	b := constArray(t, 2, 10.0)
	out, err := pixel.Preprocess(pixel.Inputs{
		Raw: raw, RawType: pixel.RawUint8, Width: 2, Height: 1,
		Level: pixel.LevelAffine, OutType: array.Float64,
		A: a, B: b,
	})
	require.NoError(t, err)

	dat, err := array.New(array.Float64, 2)
	require.NoError(t, err)
	copy(dat.Data, out.Dat)
	assert.Equal(t, float64(180), dat.At(0)) // (100-10)*2
	assert.Equal(t, float64(380), dat.At(1)) // (200-10)*2
}

func Test_PreprocessLevelFullWeightFormula(t *testing.T) {
	raw := []byte{50}
	a := constArray(t, 1, 1.0)
	b := constArray(t, 1, 0.0)
	q := constArray(t, 1, 4.0)
	r := constArray(t, 1, 2.0)
	out, err := pixel.Preprocess(pixel.Inputs{
		Raw: raw, RawType: pixel.RawUint8, Width: 1, Height: 1,
		Level: pixel.LevelFull, OutType: array.Float64,
		A: a, B: b, Q: q, R: r,
	})
	require.NoError(t, err)

	wgt, err := array.New(array.Float64, 1)
	require.NoError(t, err)
	copy(wgt.Data, out.Wgt)
	// dat = 50, wgt = q/(max(dat,0)+r) = 4/(50+2) = 4/52
	assert.InDelta(t, 4.0/52.0, wgt.At(0), 1e-9)
}

func Test_PreprocessPropagatesNaNThroughWeight(t *testing.T) {
	raw := []byte{0}
	a := constArray(t, 1, math.NaN())
	b := constArray(t, 1, 0.0)
	q := constArray(t, 1, 4.0)
	r := constArray(t, 1, 2.0)
	out, err := pixel.Preprocess(pixel.Inputs{
		Raw: raw, RawType: pixel.RawUint8, Width: 1, Height: 1,
		Level: pixel.LevelFull, OutType: array.Float64,
		A: a, B: b, Q: q, R: r,
	})
	require.NoError(t, err)

	wgt, err := array.New(array.Float64, 1)
	require.NoError(t, err)
	copy(wgt.Data, out.Wgt)
	assert.True(t, math.IsNaN(wgt.At(0)))
}

func Test_PreprocessPacked12Input(t *testing.T) {
	samples := []uint16{10, 20, 30, 40}
	packed, err := array.Pack12(samples)
	require.NoError(t, err)

	out, err := pixel.Preprocess(pixel.Inputs{
		Raw: packed, RawType: pixel.RawPacked12, Width: 4, Height: 1,
		Level: pixel.LevelNone, OutType: array.Float32,
	})
	require.NoError(t, err)

	dat, err := array.New(array.Float32, 4)
	require.NoError(t, err)
	copy(dat.Data, out.Dat)
	assert.Equal(t, float64(30), dat.At(2))
}

func Test_PreprocessRejectsShortRawBuffer(t *testing.T) {
	_, err := pixel.Preprocess(pixel.Inputs{
		Raw: []byte{1, 2}, RawType: pixel.RawUint16, Width: 4, Height: 1,
		Level: pixel.LevelNone, OutType: array.Float64,
	})
	assert.Error(t, err)
}
