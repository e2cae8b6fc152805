package prs

// decompressor walks a PRS stream. When dst is nil the walk only
// advances the notional destination cursor, which is how the size-only
// pass shares the exact state transitions of real decompression.
type decompressor struct {
	src    []byte
	srcPos int
	dst    []byte
	dstPos int
	bitpos int
	cur    byte
}

func (d *decompressor) readByte() (byte, error) {
	if d.srcPos >= len(d.src) {
		return 0, ErrTruncated
	}
	b := d.src[d.srcPos]
	d.srcPos++
	return b, nil
}

func (d *decompressor) readBit() (int, error) {
	d.bitpos--
	if d.bitpos == 0 {
		b, err := d.readByte()
		if err != nil {
			return 0, err
		}
		d.cur = b
		d.bitpos = 8
	}
	flag := int(d.cur & 1)
	d.cur >>= 1
	return flag, nil
}

func (d *decompressor) emitLiteral(value byte) error {
	if d.dst != nil {
		if d.dstPos >= len(d.dst) {
			return ErrSizeOverflow
		}
		d.dst[d.dstPos] = value
	}
	d.dstPos++
	return nil
}

// emitBackref copies length bytes from offset bytes behind the
// destination cursor. The regions may overlap; copying byte by byte is
// what makes RLE-style expansion work.
func (d *decompressor) emitBackref(offset, length int) error {
	for i := 0; i < length; i++ {
		from := d.dstPos + offset
		if from < 0 {
			return ErrMalformedInput
		}
		if d.dst != nil {
			if d.dstPos >= len(d.dst) {
				return ErrSizeOverflow
			}
			d.dst[d.dstPos] = d.dst[from]
		}
		d.dstPos++
	}
	return nil
}

func (d *decompressor) run() (int, error) {
	b, err := d.readByte()
	if err != nil {
		return 0, err
	}
	d.cur = b
	d.bitpos = 9

	for {
		flag, err := d.readBit()
		if err != nil {
			return 0, err
		}
		if flag == 1 {
			value, err := d.readByte()
			if err != nil {
				return 0, err
			}
			if err := d.emitLiteral(value); err != nil {
				return 0, err
			}
			continue
		}

		flag, err = d.readBit()
		if err != nil {
			return 0, err
		}

		var length, offset int
		if flag == 1 {
			// long form: 13-bit offset, length inline or in a third byte
			b1, err := d.readByte()
			if err != nil {
				return 0, err
			}
			b2, err := d.readByte()
			if err != nil {
				return 0, err
			}
			combined := int(b2)<<8 | int(b1)
			if combined == 0 {
				return d.dstPos, nil
			}
			length = combined & 0x07
			offset = (combined >> 3) | -0x2000
			if length == 0 {
				b, err := d.readByte()
				if err != nil {
					return 0, err
				}
				length = int(b) + 1
			} else {
				length += 2
			}
		} else {
			// short form: 2-bit length adjust, 8-bit offset
			length = 0
			for i := 0; i < 2; i++ {
				bit, err := d.readBit()
				if err != nil {
					return 0, err
				}
				length = length<<1 | bit
			}
			length += 2
			b, err := d.readByte()
			if err != nil {
				return 0, err
			}
			offset = int(b) | -0x100
		}

		if err := d.emitBackref(offset, length); err != nil {
			return 0, err
		}
	}
}

func checkSource(source []byte) error {
	if source == nil {
		return ErrInvalidParams
	}
	if len(source) == 0 {
		return ErrInvalidParams
	}
	if len(source) < minCompressedLength {
		return ErrMalformedInput
	}
	return nil
}

// Decompress expands a PRS stream, returning the decompressed bytes.
// The output size is established by a size-only pass first, so the
// result is allocated exactly once.
func Decompress(source []byte) ([]byte, error) {
	size, err := DecompressSize(source)
	if err != nil {
		return nil, err
	}
	d := &decompressor{src: source, dst: make([]byte, size)}
	n, err := d.run()
	if err != nil {
		return nil, err
	}
	return d.dst[:n], nil
}

// DecompressSize walks a PRS stream without materializing output and
// returns the decompressed length.
func DecompressSize(source []byte) (int, error) {
	if err := checkSource(source); err != nil {
		return 0, err
	}
	d := &decompressor{src: source}
	return d.run()
}
