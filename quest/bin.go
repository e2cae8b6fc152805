package quest

import (
	"encoding/binary"

	"github.com/go-restruct/restruct"
	"github.com/pkg/errors"

	"psoquest/charset"
)

const (
	// BinHeaderSize is the fixed size of the header at the start of a
	// decompressed quest .bin file. The object code always follows
	// immediately, so object_code_offset must equal this.
	BinHeaderSize = 468

	BinNameLength             = 32
	BinShortDescriptionLength = 128
	BinLongDescriptionLength  = 288
)

// BinHeader mirrors the 468-byte header of a decompressed .bin file,
// byte for byte. Reserved carries no known meaning but is kept verbatim
// for round-trips, as is Unknown.
//
// The two bytes at NumberByte/EpisodeByte are ambiguous: official
// quests use them as {quest_number: u8, episode: u8} while various
// editor-produced quests store a single u16 quest number there. Both
// readings are exposed; see QuestNumber and QuestNumberWord.
type BinHeader struct {
	ObjectCodeOffset          uint32 `struct:"uint32"`
	FunctionOffsetTableOffset uint32 `struct:"uint32"`
	BinSize                   uint32 `struct:"uint32"`
	Reserved                  uint32 `struct:"uint32"`
	Download                  uint8  `struct:"uint8"`
	Unknown                   uint8  `struct:"uint8"`
	NumberByte                uint8  `struct:"uint8"`
	EpisodeByte               uint8  `struct:"uint8"`
	Name                      []byte `struct:"[32]byte"`
	ShortDescription          []byte `struct:"[128]byte"`
	LongDescription           []byte `struct:"[288]byte"`
}

// QuestNumber is the quest identifier under the u8 interpretation.
func (h *BinHeader) QuestNumber() uint8 {
	return h.NumberByte
}

// QuestNumberWord is the quest identifier under the u16 interpretation.
func (h *BinHeader) QuestNumberWord() uint16 {
	return uint16(h.NumberByte) | uint16(h.EpisodeByte)<<8
}

// Episode returns the episode byte: 0 for Episode I, 1 for Episode II.
// A value above 1 suggests the u16 quest number interpretation.
func (h *BinHeader) Episode() uint8 {
	return h.EpisodeByte
}

// IsDownload reports whether the download flag is set. The client only
// finds a quest on a memory card when it is.
func (h *BinHeader) IsDownload() bool {
	return h.Download != 0
}

// NameString decodes the quest name field from Shift-JIS.
func (h *BinHeader) NameString() (string, error) {
	return charset.DecodeField(h.Name)
}

// ShortDescriptionString decodes the short description from Shift-JIS.
func (h *BinHeader) ShortDescriptionString() (string, error) {
	return charset.DecodeField(h.ShortDescription)
}

// LongDescriptionString decodes the long description from Shift-JIS.
func (h *BinHeader) LongDescriptionString() (string, error) {
	return charset.DecodeField(h.LongDescription)
}

// Bin is a decompressed quest .bin file: the parsed header plus the
// full decompressed image it was read from. The image is kept whole so
// that recovery heuristics can adjust it and writes can reproduce the
// object code and function offset table untouched.
type Bin struct {
	Header BinHeader
	Data   []byte

	// NumberIsWord records that the quest identifier bytes are being
	// read as a single u16 quest number rather than {number, episode}.
	// Recovery adopts this reading when the episode byte is above 1.
	NumberIsWord bool
}

// ParseBin parses the header of a decompressed .bin image. The image
// is retained, not copied; the caller hands over ownership. Parsing is
// deliberately permissive so validation can report on what was found:
// only an image too short to contain a header is rejected.
func ParseBin(data []byte) (*Bin, error) {
	if data == nil {
		return nil, ErrInvalidParams
	}
	if len(data) < BinHeaderSize {
		return nil, errors.Wrapf(ErrTruncated, "bin image is %d bytes, header alone is %d", len(data), BinHeaderSize)
	}

	bin := &Bin{Data: data}
	if err := restruct.Unpack(data[:BinHeaderSize], binary.LittleEndian, &bin.Header); err != nil {
		return nil, errors.Wrap(err, "unpacking bin header")
	}
	return bin, nil
}

// SetDownload sets or clears the download flag in both the parsed
// header and the underlying image.
func (b *Bin) SetDownload(download bool) {
	if download {
		b.Header.Download = 1
	} else {
		b.Header.Download = 0
	}
	b.Data[16] = b.Header.Download
}

// ObjectCode returns the script bytecode segment, clamped to the image.
func (b *Bin) ObjectCode() []byte {
	start := int(b.Header.ObjectCodeOffset)
	end := int(b.Header.FunctionOffsetTableOffset)
	return clampSlice(b.Data, start, end)
}

// FunctionOffsetTable returns the trailing offset table, clamped to the
// image.
func (b *Bin) FunctionOffsetTable() []byte {
	start := int(b.Header.FunctionOffsetTableOffset)
	return clampSlice(b.Data, start, len(b.Data))
}

// Bytes serializes the bin back to a decompressed image: the header is
// re-packed over the retained image so that header mutations (the
// download flag) are reflected while everything after the header is
// emitted verbatim.
func (b *Bin) Bytes() ([]byte, error) {
	header, err := restruct.Pack(binary.LittleEndian, &b.Header)
	if err != nil {
		return nil, errors.Wrap(err, "packing bin header")
	}
	out := make([]byte, 0, len(b.Data))
	out = append(out, header...)
	out = append(out, b.Data[BinHeaderSize:]...)
	return out, nil
}

func clampSlice(data []byte, start, end int) []byte {
	if start < 0 {
		start = 0
	}
	if start > len(data) {
		start = len(data)
	}
	if end < start {
		end = start
	}
	if end > len(data) {
		end = len(data)
	}
	return data[start:end]
}
