package crypt

import "encoding/binary"

const pcStreamLength = 57

// PCCrypter is the "PC" variant keystream generator: a 57-word rolling
// table seeded by a 32-bit key. Words are consumed one per dword; the
// table is rescrambled whenever the read position wraps.
type PCCrypter struct {
	stream [pcStreamLength]uint32
	offset int
}

// NewPCCrypter creates a cipher state from seed. Equal seeds produce
// equal states, and therefore equal keystreams.
func NewPCCrypter(seed uint32) *PCCrypter {
	esi := uint32(1)
	ebx := seed
	edi := uint32(0x15)

	c := &PCCrypter{}
	c.stream[56] = ebx
	c.stream[55] = ebx

	for edi <= 0x46E {
		eax := edi
		edx := eax - (eax/55)*55
		ebx -= esi
		edi += 0x15
		c.stream[edx] = esi
		esi = ebx
		ebx = c.stream[edx]
	}

	c.offset = pcStreamLength - 1
	c.updateStream()
	c.updateStream()
	c.updateStream()
	c.updateStream()

	return c
}

func (c *PCCrypter) updateStream() {
	eax := uint32(1)
	for edx := 0x18; edx > 0; edx-- {
		esi := c.stream[eax+0x1F]
		c.stream[eax] -= esi
		eax++
	}

	eax = 0x19
	for edx := 0x1F; edx > 0; edx-- {
		esi := c.stream[eax-0x18]
		c.stream[eax] -= esi
		eax++
	}
}

func (c *PCCrypter) next() uint32 {
	if c.offset == pcStreamLength-1 {
		c.updateStream()
		c.offset = 1
	}
	word := c.stream[c.offset]
	c.offset++
	return word
}

// Crypt XORs the keystream against data in place. The length must be a
// positive multiple of 4.
func (c *PCCrypter) Crypt(data []byte) error {
	if len(data) == 0 || len(data)%4 != 0 {
		return ErrInvalidParams
	}
	for i := 0; i < len(data); i += 4 {
		word := binary.LittleEndian.Uint32(data[i:])
		binary.LittleEndian.PutUint32(data[i:], word^c.next())
	}
	return nil
}
