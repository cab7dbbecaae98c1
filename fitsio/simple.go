package fitsio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/WitIOT/tao/array"
)

// SimpleCodec implements Codec for a single IMAGE HDU: one header (no
// extensions, no WCS, no checksum cards) followed by one data block.
// It is enough to carry a package array.Array through a FITS file and
// back, matching the original library's load/save pair without
// pulling in an external cfitsio binding.
type SimpleCodec struct{}

// NewSimpleCodec returns a ready-to-use SimpleCodec.
func NewSimpleCodec() *SimpleCodec { return &SimpleCodec{} }

func bitpixBytes(bitpix int) int {
	if bitpix < 0 {
		bitpix = -bitpix
	}
	return bitpix / 8
}

func writeSample(buf []byte, bitpix int, stored float64) {
	switch bitpix {
	case 8:
		buf[0] = byte(int64(math.Round(stored)))
	case 16:
		binary.BigEndian.PutUint16(buf, uint16(int16(math.Round(stored))))
	case 32:
		binary.BigEndian.PutUint32(buf, uint32(int32(math.Round(stored))))
	case 64:
		binary.BigEndian.PutUint64(buf, uint64(int64(math.Round(stored))))
	case -32:
		binary.BigEndian.PutUint32(buf, math.Float32bits(float32(stored)))
	case -64:
		binary.BigEndian.PutUint64(buf, math.Float64bits(stored))
	}
}

func readSample(buf []byte, bitpix int) float64 {
	switch bitpix {
	case 8:
		return float64(buf[0])
	case 16:
		return float64(int16(binary.BigEndian.Uint16(buf)))
	case 32:
		return float64(int32(binary.BigEndian.Uint32(buf)))
	case 64:
		return float64(int64(binary.BigEndian.Uint64(buf)))
	case -32:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(buf)))
	case -64:
		return math.Float64frombits(binary.BigEndian.Uint64(buf))
	default:
		return 0
	}
}

// Save writes a as a single-HDU FITS image to w, calling edit (if
// non-nil) after the mandatory cards are computed from a's element
// type and shape, so a caller can add its own keyword cards — the Go
// counterpart of the original library's header-customization callback.
func (SimpleCodec) Save(w io.Writer, a *array.Array, edit func(h *Header) error) error {
	bitpix, bzero, err := bitpixBzeroFor(a.Eltype)
	if err != nil {
		return err
	}

	h := &Header{
		Bitpix: bitpix,
		Naxis:  append([]int64(nil), a.Dims[:a.Ndims]...),
		Bscale: 1,
		Bzero:  bzero,
	}
	if edit != nil {
		if err := edit(h); err != nil {
			return fmt.Errorf("fitsio: edit callback: %w", err)
		}
	}
	if h.Bitpix != bitpix {
		return fmt.Errorf("fitsio: edit callback must not change BITPIX (got %d, array requires %d)", h.Bitpix, bitpix)
	}

	var cards []string
	cards = append(cards, encodeCard("SIMPLE", "T", "conforms to FITS standard"))
	cards = append(cards, encodeCard("BITPIX", strconv.Itoa(h.Bitpix), ""))
	cards = append(cards, encodeCard("NAXIS", strconv.Itoa(len(h.Naxis)), ""))
	for i, n := range h.Naxis {
		cards = append(cards, encodeCard(fmt.Sprintf("NAXIS%d", i+1), strconv.FormatInt(n, 10), ""))
	}
	cards = append(cards, encodeCard("BSCALE", strconv.FormatFloat(h.Bscale, 'g', -1, 64), ""))
	cards = append(cards, encodeCard("BZERO", strconv.FormatFloat(h.Bzero, 'g', -1, 64), ""))
	if h.Extname != "" {
		cards = append(cards, encodeStringCard("EXTNAME", h.Extname, ""))
	}
	for _, c := range h.Extra {
		cards = append(cards, encodeCard(c.Key, c.Value, c.Comment))
	}
	cards = append(cards, encodeCard("END", "", ""))

	headerBytes := []byte(strings.Join(cards, ""))
	padded := padToBlock(len(headerBytes))
	headerBytes = append(headerBytes, bytes.Repeat([]byte{' '}, padded-len(headerBytes))...)
	if _, err := w.Write(headerBytes); err != nil {
		return fmt.Errorf("fitsio: write header: %w", err)
	}

	sampleSize := bitpixBytes(h.Bitpix)
	elemSize := a.Eltype.Size()
	n := a.NElem()
	data := make([]byte, n*int64(sampleSize))
	sample := make([]byte, sampleSize)
	for i := int64(0); i < n; i++ {
		v := array.ReadElement(a.Data[i*int64(elemSize):], a.Eltype)
		stored := (v - h.Bzero) / h.Bscale
		writeSample(sample, h.Bitpix, stored)
		copy(data[i*int64(sampleSize):], sample)
	}
	dataPadded := padToBlock(len(data))
	if dataPadded > len(data) {
		data = append(data, make([]byte, dataPadded-len(data))...)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("fitsio: write data: %w", err)
	}
	return nil
}

// Load reads a single-HDU FITS image from r into a new array.Array,
// calling edit (if non-nil) after the header is parsed and before the
// element type and data are decoded, so a caller can inspect or
// override a keyword (e.g. force a different BZERO interpretation)
// ahead of allocation.
func (SimpleCodec) Load(r io.Reader, edit func(h *Header) error) (*array.Array, error) {
	reader := bufio.NewReader(r)

	var cards []Card
	for {
		block := make([]byte, blockSize)
		if _, err := io.ReadFull(reader, block); err != nil {
			return nil, fmt.Errorf("fitsio: read header block: %w", err)
		}
		stop := false
		for i := 0; i < blockSize; i += cardSize {
			c := decodeCard(string(block[i : i+cardSize]))
			if c.Key == "END" {
				stop = true
				break
			}
			cards = append(cards, c)
		}
		if stop {
			break
		}
	}

	h := &Header{Bscale: 1, Bzero: 0}
	var naxis int
	naxisN := map[int]int64{}
	for _, c := range cards {
		switch {
		case c.Key == "":
			continue
		case c.Key == "SIMPLE":
			continue
		case c.Key == "BITPIX":
			v, err := parseInt(c.Value)
			if err != nil {
				return nil, fmt.Errorf("fitsio: bad BITPIX: %w", err)
			}
			h.Bitpix = int(v)
		case c.Key == "NAXIS":
			v, err := parseInt(c.Value)
			if err != nil {
				return nil, fmt.Errorf("fitsio: bad NAXIS: %w", err)
			}
			naxis = int(v)
		case strings.HasPrefix(c.Key, "NAXIS"):
			idx, err := strconv.Atoi(strings.TrimPrefix(c.Key, "NAXIS"))
			if err != nil {
				return nil, fmt.Errorf("fitsio: bad keyword %s", c.Key)
			}
			v, err := parseInt(c.Value)
			if err != nil {
				return nil, fmt.Errorf("fitsio: bad %s: %w", c.Key, err)
			}
			naxisN[idx] = v
		case c.Key == "BSCALE":
			v, err := parseFloat(c.Value)
			if err != nil {
				return nil, fmt.Errorf("fitsio: bad BSCALE: %w", err)
			}
			h.Bscale = v
		case c.Key == "BZERO":
			v, err := parseFloat(c.Value)
			if err != nil {
				return nil, fmt.Errorf("fitsio: bad BZERO: %w", err)
			}
			h.Bzero = v
		case c.Key == "EXTNAME":
			h.Extname = c.Value
		default:
			h.Extra = append(h.Extra, c)
		}
	}

	h.Naxis = make([]int64, naxis)
	for i := 1; i <= naxis; i++ {
		h.Naxis[i-1] = naxisN[i]
	}

	if edit != nil {
		if err := edit(h); err != nil {
			return nil, fmt.Errorf("fitsio: edit callback: %w", err)
		}
	}

	eltype, err := elementTypeFor(h.Bitpix, h.Bzero)
	if err != nil {
		return nil, err
	}

	dims := make([]int64, len(h.Naxis))
	copy(dims, h.Naxis)
	a, err := array.New(eltype, dims...)
	if err != nil {
		return nil, fmt.Errorf("fitsio: allocate array: %w", err)
	}

	sampleSize := bitpixBytes(h.Bitpix)
	n := a.NElem()
	dataLen := padToBlock(int(n) * sampleSize)
	data := make([]byte, dataLen)
	if _, err := io.ReadFull(reader, data); err != nil {
		return nil, fmt.Errorf("fitsio: read data: %w", err)
	}

	elemSize := eltype.Size()
	for i := int64(0); i < n; i++ {
		stored := readSample(data[i*int64(sampleSize):], h.Bitpix)
		v := h.Bzero + h.Bscale*stored
		array.WriteElement(a.Data[i*int64(elemSize):], eltype, v)
	}
	return a, nil
}
