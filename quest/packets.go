package quest

import (
	"encoding/binary"

	"github.com/go-restruct/restruct"
	"github.com/pkg/errors"

	"psoquest/charset"
)

// Packet ids used by the two .qst delivery forms. Download quests go to
// a memory card and their chunk payloads are stream-encrypted; online
// quests are served for live play, unencrypted.
const (
	PacketIDQuestHeaderOnline   = 0x44
	PacketIDQuestHeaderDownload = 0xA6
	PacketIDQuestChunkOnline    = 0x13
	PacketIDQuestChunkDownload  = 0xA7
)

const (
	// QstHeaderSize is the fixed size of a .qst file header record.
	QstHeaderSize = 60

	// QstChunkSize is the fixed size of a .qst data chunk record.
	QstChunkSize = 1056

	// QstChunkDataSize is the data capacity of one chunk; every chunk
	// except a file's final one carries exactly this many bytes.
	QstChunkDataSize = 1024

	QstNameLength     = 32
	QstFilenameLength = 16
)

// QstHeader is one of the two 60-byte file header records at the start
// of a .qst file, one per embedded file. PktFlags, Unused and Flags
// vary across producers with no effect on the client; writers emit
// zero. Size is the total payload byte count for the file, after any
// download wrapper has been added and before chunk framing.
type QstHeader struct {
	PktID    uint8  `struct:"uint8"`
	PktFlags uint8  `struct:"uint8"`
	PktSize  uint16 `struct:"uint16"`
	Name     []byte `struct:"[32]byte"`
	Unused   uint16 `struct:"uint16"`
	Flags    uint16 `struct:"uint16"`
	Filename []byte `struct:"[16]byte"`
	Size     uint32 `struct:"uint32"`
}

// QstChunk is a 1056-byte data chunk record. PktFlags is a per-file
// sequence counter starting at 0 and wrapping modulo 256. Size is the
// number of bytes of Data actually used; the rest is zero padding. The
// record carries 8 trailing bytes with no meaning; writers emit zero.
type QstChunk struct {
	PktID    uint8  `struct:"uint8"`
	PktFlags uint8  `struct:"uint8"`
	PktSize  uint16 `struct:"uint16"`
	Filename []byte `struct:"[16]byte"`
	Data     []byte `struct:"[1024]byte"`
	Size     uint32 `struct:"uint32"`
	Trailer  []byte `struct:"[8]byte"`
}

// DownloadHeader is the 8-byte wrapper prefixed to a download quest's
// compressed payload before encryption. The wrapper itself travels
// unencrypted; only the bytes after it are crypted with CryptKey.
type DownloadHeader struct {
	DecompressedSize uint32 `struct:"uint32"` // decompressed payload size plus the wrapper's own 8 bytes
	CryptKey         uint32 `struct:"uint32"`
}

const downloadHeaderSize = 8

// FilenameString returns the header's base filename.
func (h *QstHeader) FilenameString() string {
	return string(charset.Unpad(h.Filename))
}

// FilenameString returns the chunk's base filename.
func (c *QstChunk) FilenameString() string {
	return string(charset.Unpad(c.Filename))
}

func newQstHeader(pktID uint8, questName string, filename string, payloadSize int) (*QstHeader, error) {
	if len(filename) == 0 || len(filename) > QstFilenameLength {
		return nil, errors.Wrapf(ErrInvalidParams, "filename %q must be 1 to %d bytes", filename, QstFilenameLength)
	}

	name, err := charset.EncodeField(questName, QstNameLength)
	if err != nil {
		return nil, errors.Wrap(err, "encoding quest name")
	}

	header := &QstHeader{
		PktID:    pktID,
		PktSize:  QstHeaderSize,
		Name:     name,
		Filename: make([]byte, QstFilenameLength),
		Size:     uint32(payloadSize),
	}
	copy(header.Filename, filename)
	return header, nil
}

func packRecord(v interface{}) ([]byte, error) {
	data, err := restruct.Pack(binary.LittleEndian, v)
	if err != nil {
		return nil, errors.Wrap(err, "packing qst record")
	}
	return data, nil
}
