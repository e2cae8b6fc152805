package prs

import "bytes"

// compressor accumulates the PRS bitstream. One control byte is held at
// the front of forwardLog ahead of the data bytes it governs; control
// bits are shifted in from the high end, and once eight have been
// emitted the whole run is flushed to output and a fresh control byte
// is reserved.
type compressor struct {
	bitpos     uint
	forwardLog []byte
	output     []byte
}

func newCompressor() *compressor {
	return &compressor{
		forwardLog: []byte{0},
	}
}

func (c *compressor) putControlBitNosave(bit bool) {
	c.forwardLog[0] >>= 1
	if bit {
		c.forwardLog[0] |= 0x80
	}
	c.bitpos++
}

func (c *compressor) putControlSave() {
	if c.bitpos >= 8 {
		c.bitpos = 0
		c.output = append(c.output, c.forwardLog...)
		c.forwardLog = c.forwardLog[:1]
		c.forwardLog[0] = 0
	}
}

func (c *compressor) putControlBit(bit bool) {
	c.putControlBitNosave(bit)
	c.putControlSave()
}

func (c *compressor) putStaticData(data byte) {
	c.forwardLog = append(c.forwardLog, data)
}

func (c *compressor) rawByte(value byte) {
	c.putControlBitNosave(true)
	c.putStaticData(value)
	c.putControlSave()
}

func (c *compressor) shortCopy(offset int, size byte) {
	size -= 2
	c.putControlBit(false)
	c.putControlBit(false)
	c.putControlBit((size>>1)&1 == 1)
	c.putControlBitNosave(size&1 == 1)
	c.putStaticData(byte(offset & 0xFF))
	c.putControlSave()
}

func (c *compressor) longCopy(offset int, size byte) {
	if size <= 9 {
		c.putControlBit(false)
		c.putControlBitNosave(true)
		c.putStaticData(byte((offset<<3)&0xF8) | ((size - 2) & 0x07))
		c.putStaticData(byte((offset >> 5) & 0xFF))
		c.putControlSave()
	} else {
		c.putControlBit(false)
		c.putControlBitNosave(true)
		c.putStaticData(byte((offset << 3) & 0xF8))
		c.putStaticData(byte((offset >> 5) & 0xFF))
		c.putStaticData(size - 1)
		c.putControlSave()
	}
}

func (c *compressor) copy(offset int, size byte) {
	if offset > -0x100 && size <= 5 {
		c.shortCopy(offset, size)
	} else {
		c.longCopy(offset, size)
	}
}

func (c *compressor) finish() []byte {
	c.putControlBit(false)
	c.putControlBit(true)
	if c.bitpos != 0 {
		c.forwardLog[0] = byte((uint32(c.forwardLog[0]) << c.bitpos) >> 8)
	}
	c.putStaticData(0)
	c.putStaticData(0)
	return append(c.output, c.forwardLog...)
}

// isMemEqual compares two windows of base without ever reading out of
// bounds. The original C implementation routinely memcmp'd slightly
// past its buffers; treating those reads as a mismatch keeps the
// emitted stream deterministic.
func isMemEqual(base []byte, offset1, offset2, length int) bool {
	if offset1 < 0 || offset2 < 0 {
		return false
	}
	if offset1+length > len(base) || offset2+length > len(base) {
		return false
	}
	return bytes.Equal(base[offset1:offset1+length], base[offset2:offset2+length])
}

// Compress encodes source as a PRS stream. The input must be at least 3
// bytes long.
//
// The encoder is a greedy longest-match search: for each position the
// window [max(1, x-0x1FF0), x-3] is scanned backward for the longest
// match of at least 3 bytes (capped at 255), preferring the short
// one-data-byte encoding when the offset and length permit it.
func Compress(source []byte) ([]byte, error) {
	if source == nil {
		return nil, ErrInvalidParams
	}
	if len(source) == 0 {
		return nil, ErrInvalidParams
	}
	if len(source) < minCompressedLength {
		return nil, ErrMalformedInput
	}

	c := newCompressor()

	x := 0
	for x < len(source) {
		lsoffset, lssize := 0, 0
		xsize := 0

		for y := x - 3; y > 0 && y >= x-maxLookback && xsize < maxMatchLength; y-- {
			xsize = 3
			if isMemEqual(source, y, x, xsize) {
				xsize++
				for xsize < 256 &&
					y+xsize < x &&
					x+xsize <= len(source) &&
					isMemEqual(source, y, x, xsize) {
					xsize++
				}
				xsize--

				if xsize > lssize {
					lsoffset = -(x - y)
					lssize = xsize
				}
			}
		}

		if lssize == 0 {
			c.rawByte(source[x])
		} else {
			c.copy(lsoffset, byte(lssize))
			x += lssize - 1
		}
		x++
	}

	return c.finish(), nil
}
