package quest

import (
	"encoding/binary"
	"math/rand"
	"strings"

	"github.com/go-restruct/restruct"
	"github.com/pkg/errors"

	"psoquest/crypt"
)

// Qst is a parsed (or to-be-written) .qst container: the two file
// header records plus each file's reassembled payload stream. For a
// download qst the payloads are {wrapper, encrypted compressed data};
// for an online qst they are the compressed data directly.
type Qst struct {
	BinHeader  QstHeader
	DatHeader  QstHeader
	BinPayload []byte
	DatPayload []byte
}

// QstFile describes one file to be embedded when building a qst.
type QstFile struct {
	Filename string
	Data     []byte // PRS-compressed file data

	// DecompressedSize is recorded in the download wrapper; unused for
	// online quests.
	DecompressedSize int
}

// IsDownload reports whether this qst uses the download (memory card)
// framing, and therefore encrypted payloads.
func (q *Qst) IsDownload() bool {
	return q.BinHeader.PktID == PacketIDQuestHeaderDownload
}

// encryptPayload pads data to dword alignment, encrypts it in place
// under a fresh random key, and prepends the unencrypted download
// wrapper.
func encryptPayload(data []byte, decompressedSize int) ([]byte, error) {
	if pad := len(data) % 4; pad != 0 {
		data = append(data, make([]byte, 4-pad)...)
	}

	key := rand.Uint32()
	if err := crypt.NewPCCrypter(key).Crypt(data); err != nil {
		return nil, errors.Wrap(err, "encrypting download quest payload")
	}

	wrapper, err := packRecord(&DownloadHeader{
		DecompressedSize: uint32(decompressedSize + downloadHeaderSize),
		CryptKey:         key,
	})
	if err != nil {
		return nil, err
	}
	return append(wrapper, data...), nil
}

// decryptPayload strips the download wrapper and decrypts the rest of
// the payload in place with the wrapper's key.
func decryptPayload(data []byte) ([]byte, error) {
	if len(data) < downloadHeaderSize {
		return nil, errors.Wrapf(ErrTruncated, "payload of %d bytes cannot hold a download wrapper", len(data))
	}

	var wrapper DownloadHeader
	if err := restruct.Unpack(data[:downloadHeaderSize], binary.LittleEndian, &wrapper); err != nil {
		return nil, errors.Wrap(err, "unpacking download wrapper")
	}

	payload := data[downloadHeaderSize:]
	if len(payload) == 0 || len(payload)%4 != 0 {
		return nil, errors.Wrapf(ErrMalformedInput, "encrypted payload of %d bytes is not dword aligned", len(payload))
	}
	if err := crypt.NewPCCrypter(wrapper.CryptKey).Crypt(payload); err != nil {
		return nil, errors.Wrap(err, "decrypting download quest payload")
	}
	return payload, nil
}

// NewQst assembles a qst from a quest's two compressed files. When
// download is set the payloads are wrapped and encrypted, and the
// header records use the download packet id.
func NewQst(questName string, bin, dat QstFile, download bool) (*Qst, error) {
	if bin.Data == nil || dat.Data == nil {
		return nil, ErrInvalidParams
	}

	pktID := uint8(PacketIDQuestHeaderOnline)
	binPayload := bin.Data
	datPayload := dat.Data

	if download {
		pktID = PacketIDQuestHeaderDownload

		var err error
		// the payloads are copied before encryption so the caller's
		// compressed buffers stay untouched
		if binPayload, err = encryptPayload(append([]byte(nil), bin.Data...), bin.DecompressedSize); err != nil {
			return nil, err
		}
		if datPayload, err = encryptPayload(append([]byte(nil), dat.Data...), dat.DecompressedSize); err != nil {
			return nil, err
		}
	}

	binHeader, err := newQstHeader(pktID, questName, bin.Filename, len(binPayload))
	if err != nil {
		return nil, errors.Wrap(err, "building bin header record")
	}
	datHeader, err := newQstHeader(pktID, questName, dat.Filename, len(datPayload))
	if err != nil {
		return nil, errors.Wrap(err, "building dat header record")
	}

	return &Qst{
		BinHeader:  *binHeader,
		DatHeader:  *datHeader,
		BinPayload: binPayload,
		DatPayload: datPayload,
	}, nil
}

// chunkPayload splits one file's payload into 1056-byte chunk records
// carrying 1024 data bytes each (the final chunk carries the
// remainder), with a sequence counter wrapping modulo 256.
func chunkPayload(pktID uint8, filename []byte, payload []byte) []QstChunk {
	var chunks []QstChunk
	for offset, counter := 0, 0; offset < len(payload); counter++ {
		size := len(payload) - offset
		if size > QstChunkDataSize {
			size = QstChunkDataSize
		}

		chunk := QstChunk{
			PktID:    pktID,
			PktFlags: uint8(counter % 256),
			PktSize:  QstChunkSize,
			Filename: append([]byte(nil), filename...),
			Data:     make([]byte, QstChunkDataSize),
			Size:     uint32(size),
			Trailer:  make([]byte, 8),
		}
		copy(chunk.Data, payload[offset:offset+size])
		chunks = append(chunks, chunk)
		offset += size
	}
	return chunks
}

// Bytes serializes the container: both header records (bin first) then
// the two files' chunks, alternating one from each until the shorter
// file runs out.
func (q *Qst) Bytes() ([]byte, error) {
	chunkID := uint8(PacketIDQuestChunkOnline)
	if q.IsDownload() {
		chunkID = PacketIDQuestChunkDownload
	}

	binChunks := chunkPayload(chunkID, q.BinHeader.Filename, q.BinPayload)
	datChunks := chunkPayload(chunkID, q.DatHeader.Filename, q.DatPayload)

	out := make([]byte, 0, 2*QstHeaderSize+(len(binChunks)+len(datChunks))*QstChunkSize)

	record, err := packRecord(&q.BinHeader)
	if err != nil {
		return nil, err
	}
	out = append(out, record...)
	record, err = packRecord(&q.DatHeader)
	if err != nil {
		return nil, err
	}
	out = append(out, record...)

	for i := 0; i < len(binChunks) || i < len(datChunks); i++ {
		if i < len(binChunks) {
			record, err = packRecord(&binChunks[i])
			if err != nil {
				return nil, err
			}
			out = append(out, record...)
		}
		if i < len(datChunks) {
			record, err = packRecord(&datChunks[i])
			if err != nil {
				return nil, err
			}
			out = append(out, record...)
		}
	}
	return out, nil
}

// qstAssembly is the per-file reassembly state of the reader.
type qstAssembly struct {
	header  QstHeader
	payload []byte
	counter int
}

// ParseQst reads a framed .qst file. Header records may appear in
// either order and chunks of the two files may be interleaved freely
// (including not at all); each file's chunks must carry sequence
// counters counting up from 0 and the reassembled byte count must match
// the size its header record advertised.
func ParseQst(data []byte) (*Qst, error) {
	if len(data) == 0 {
		return nil, ErrInvalidParams
	}

	files := map[string]*qstAssembly{}
	var headerID uint8
	offset := 0

	complete := func() bool {
		if len(files) != 2 {
			return false
		}
		for _, f := range files {
			if len(f.payload) != int(f.header.Size) {
				return false
			}
		}
		return true
	}

	for !complete() {
		if offset+4 > len(data) {
			return nil, errors.Wrapf(ErrTruncated, "qst stream ended at offset %d with incomplete quest files", offset)
		}

		pktID := data[offset]
		pktSize := binary.LittleEndian.Uint16(data[offset+2:])

		switch pktID {
		case PacketIDQuestHeaderOnline, PacketIDQuestHeaderDownload:
			if pktSize != QstHeaderSize {
				return nil, errors.Wrapf(ErrMalformedInput, "header record at offset %d has pkt_size %d", offset, pktSize)
			}
			if offset+QstHeaderSize > len(data) {
				return nil, errors.Wrapf(ErrTruncated, "header record at offset %d is cut short", offset)
			}

			var header QstHeader
			if err := restruct.Unpack(data[offset:offset+QstHeaderSize], binary.LittleEndian, &header); err != nil {
				return nil, errors.Wrap(err, "unpacking qst header record")
			}
			offset += QstHeaderSize

			filename := header.FilenameString()
			if filename == "" {
				return nil, errors.Wrap(ErrMalformedInput, "header record has a blank filename")
			}
			if _, exists := files[filename]; exists {
				return nil, errors.Wrapf(ErrMalformedInput, "duplicate header record for %q", filename)
			}
			if len(files) == 2 {
				return nil, errors.Wrap(ErrMalformedInput, "more than two header records")
			}
			if len(files) == 1 && header.PktID != headerID {
				return nil, errors.Wrap(ErrMalformedInput, "header records disagree on online vs download packet ids")
			}
			headerID = header.PktID
			files[filename] = &qstAssembly{header: header}

		case PacketIDQuestChunkOnline, PacketIDQuestChunkDownload:
			if pktSize != QstChunkSize {
				return nil, errors.Wrapf(ErrMalformedInput, "chunk record at offset %d has pkt_size %d", offset, pktSize)
			}
			if offset+QstChunkSize > len(data) {
				return nil, errors.Wrapf(ErrTruncated, "chunk record at offset %d is cut short", offset)
			}

			var chunk QstChunk
			if err := restruct.Unpack(data[offset:offset+QstChunkSize], binary.LittleEndian, &chunk); err != nil {
				return nil, errors.Wrap(err, "unpacking qst chunk record")
			}
			offset += QstChunkSize

			file, ok := files[chunk.FilenameString()]
			if !ok {
				return nil, errors.Wrapf(ErrMalformedInput, "chunk for unannounced file %q", chunk.FilenameString())
			}
			if !chunkMatchesHeader(chunk.PktID, file.header.PktID) {
				return nil, errors.Wrapf(ErrMalformedInput, "chunk packet id 0x%02X does not match header packet id 0x%02X",
					chunk.PktID, file.header.PktID)
			}
			if int(chunk.PktFlags) != file.counter%256 {
				return nil, errors.Wrapf(ErrMalformedInput, "chunk for %q has sequence counter %d, expected %d",
					chunk.FilenameString(), chunk.PktFlags, file.counter%256)
			}
			file.counter++

			if chunk.Size > QstChunkDataSize {
				return nil, errors.Wrapf(ErrMalformedInput, "chunk for %q claims %d data bytes", chunk.FilenameString(), chunk.Size)
			}
			if len(file.payload)+int(chunk.Size) > int(file.header.Size) {
				return nil, errors.Wrapf(ErrMalformedInput, "chunks for %q exceed the %d bytes its header declared",
					chunk.FilenameString(), file.header.Size)
			}
			file.payload = append(file.payload, chunk.Data[:chunk.Size]...)

		default:
			return nil, errors.Wrapf(ErrMalformedInput, "unknown packet id 0x%02X at offset %d", pktID, offset)
		}
	}

	if offset != len(data) {
		return nil, errors.Wrapf(ErrMalformedInput, "%d trailing bytes after both quest files completed", len(data)-offset)
	}

	qst := &Qst{}
	var foundBin, foundDat bool
	for filename, file := range files {
		switch {
		case strings.HasSuffix(filename, ".bin"):
			qst.BinHeader = file.header
			qst.BinPayload = file.payload
			foundBin = true
		case strings.HasSuffix(filename, ".dat"):
			qst.DatHeader = file.header
			qst.DatPayload = file.payload
			foundDat = true
		default:
			return nil, errors.Wrapf(ErrMalformedInput, "embedded filename %q is neither a .bin nor a .dat", filename)
		}
	}
	if !foundBin || !foundDat {
		return nil, errors.Wrap(ErrMalformedInput, "qst must contain exactly one .bin and one .dat file")
	}

	return qst, nil
}

func chunkMatchesHeader(chunkID, headerID uint8) bool {
	switch headerID {
	case PacketIDQuestHeaderOnline:
		return chunkID == PacketIDQuestChunkOnline
	default:
		return chunkID == PacketIDQuestChunkDownload
	}
}

// ExtractBin returns the compressed .bin data, decrypting the payload
// first for download quests.
func (q *Qst) ExtractBin() ([]byte, error) {
	return q.extract(q.BinPayload)
}

// ExtractDat returns the compressed .dat data, decrypting the payload
// first for download quests.
func (q *Qst) ExtractDat() ([]byte, error) {
	return q.extract(q.DatPayload)
}

func (q *Qst) extract(payload []byte) ([]byte, error) {
	if !q.IsDownload() {
		return append([]byte(nil), payload...), nil
	}
	return decryptPayload(append([]byte(nil), payload...))
}
