package quest

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"psoquest/prs"
)

func compressedTestFiles(t *testing.T) (binData, datData []byte, rawBinLen, rawDatLen int) {
	t.Helper()

	rawBin := buildTestBin(defaultTestBinParams())
	rawDat := defaultTestDat()

	binData, err := prs.Compress(rawBin)
	require.NoError(t, err)
	datData, err = prs.Compress(rawDat)
	require.NoError(t, err)
	return binData, datData, len(rawBin), len(rawDat)
}

func chunkCount(payloadLen int) int {
	return (payloadLen + QstChunkDataSize - 1) / QstChunkDataSize
}

func TestOnlineQstStructure(t *testing.T) {
	binData, datData, _, _ := compressedTestFiles(t)

	qst, err := NewQst("Lost HEAT SWORD",
		QstFile{Filename: "q01.bin", Data: binData},
		QstFile{Filename: "q01.dat", Data: datData},
		false)
	require.NoError(t, err)
	assert.False(t, qst.IsDownload())

	data, err := qst.Bytes()
	require.NoError(t, err)

	// two header records followed by full chunk records
	numChunks := chunkCount(len(binData)) + chunkCount(len(datData))
	require.Equal(t, 2*QstHeaderSize+numChunks*QstChunkSize, len(data))

	// bin header record first
	assert.Equal(t, byte(PacketIDQuestHeaderOnline), data[0])
	assert.Equal(t, uint16(QstHeaderSize), binary.LittleEndian.Uint16(data[2:]))
	assert.Equal(t, uint32(len(binData)), binary.LittleEndian.Uint32(data[56:]))

	// dat header record second
	assert.Equal(t, byte(PacketIDQuestHeaderOnline), data[QstHeaderSize])
	assert.Equal(t, uint32(len(datData)), binary.LittleEndian.Uint32(data[QstHeaderSize+56:]))

	// first chunk record is the bin's, sequence counter 0
	chunk := data[2*QstHeaderSize:]
	assert.Equal(t, byte(PacketIDQuestChunkOnline), chunk[0])
	assert.Equal(t, byte(0), chunk[1])
	assert.Equal(t, uint16(QstChunkSize), binary.LittleEndian.Uint16(chunk[2:]))
	filename := chunk[4:20]
	assert.Equal(t, "q01.bin", string(bytes.TrimRight(filename, "\x00")))
}

func TestOnlineQstRoundTrip(t *testing.T) {
	binData, datData, _, _ := compressedTestFiles(t)

	qst, err := NewQst("Lost HEAT SWORD",
		QstFile{Filename: "q01.bin", Data: binData},
		QstFile{Filename: "q01.dat", Data: datData},
		false)
	require.NoError(t, err)

	data, err := qst.Bytes()
	require.NoError(t, err)

	parsed, err := ParseQst(data)
	require.NoError(t, err)
	assert.False(t, parsed.IsDownload())
	assert.Equal(t, "q01.bin", parsed.BinHeader.FilenameString())
	assert.Equal(t, "q01.dat", parsed.DatHeader.FilenameString())

	gotBin, err := parsed.ExtractBin()
	require.NoError(t, err)
	assert.Equal(t, binData, gotBin)

	gotDat, err := parsed.ExtractDat()
	require.NoError(t, err)
	assert.Equal(t, datData, gotDat)
}

// assertDecryptedPayload checks that got is want plus at most 3 zero
// bytes of dword-alignment padding.
func assertDecryptedPayload(t *testing.T, want, got []byte) {
	t.Helper()
	require.GreaterOrEqual(t, len(got), len(want))
	require.Less(t, len(got)-len(want), 4)
	assert.Equal(t, want, got[:len(want)])
	for _, b := range got[len(want):] {
		assert.Equal(t, byte(0), b)
	}
}

func TestOfflineQstRoundTrip(t *testing.T) {
	binData, datData, rawBinLen, rawDatLen := compressedTestFiles(t)

	qst, err := NewQst("Lost HEAT SWORD",
		QstFile{Filename: "q01.bin", Data: binData, DecompressedSize: rawBinLen},
		QstFile{Filename: "q01.dat", Data: datData, DecompressedSize: rawDatLen},
		true)
	require.NoError(t, err)
	assert.True(t, qst.IsDownload())

	// the wrapper travels unencrypted and declares the decompressed
	// size plus its own 8 bytes
	var wrapper DownloadHeader
	wrapper.DecompressedSize = binary.LittleEndian.Uint32(qst.BinPayload[0:])
	wrapper.CryptKey = binary.LittleEndian.Uint32(qst.BinPayload[4:])
	assert.Equal(t, uint32(rawBinLen+8), wrapper.DecompressedSize)

	// the payload beyond the wrapper must actually be encrypted
	assert.NotEqual(t, binData[:16], qst.BinPayload[8:24])

	data, err := qst.Bytes()
	require.NoError(t, err)

	parsed, err := ParseQst(data)
	require.NoError(t, err)
	assert.True(t, parsed.IsDownload())

	gotBin, err := parsed.ExtractBin()
	require.NoError(t, err)
	assertDecryptedPayload(t, binData, gotBin)

	gotDat, err := parsed.ExtractDat()
	require.NoError(t, err)
	assertDecryptedPayload(t, datData, gotDat)
}

func TestOfflineQstFreshKeysPerFile(t *testing.T) {
	binData, datData, rawBinLen, rawDatLen := compressedTestFiles(t)

	qst, err := NewQst("Lost HEAT SWORD",
		QstFile{Filename: "q01.bin", Data: binData, DecompressedSize: rawBinLen},
		QstFile{Filename: "q01.dat", Data: datData, DecompressedSize: rawDatLen},
		true)
	require.NoError(t, err)

	binKey := binary.LittleEndian.Uint32(qst.BinPayload[4:])
	datKey := binary.LittleEndian.Uint32(qst.DatPayload[4:])
	assert.NotEqual(t, binKey, datKey)
}

func TestParseQstHeadersInEitherOrder(t *testing.T) {
	binData, datData, _, _ := compressedTestFiles(t)

	qst, err := NewQst("Lost HEAT SWORD",
		QstFile{Filename: "q01.bin", Data: binData},
		QstFile{Filename: "q01.dat", Data: datData},
		false)
	require.NoError(t, err)

	data, err := qst.Bytes()
	require.NoError(t, err)

	// swap the two 60-byte header records
	swapped := append([]byte(nil), data...)
	copy(swapped[0:QstHeaderSize], data[QstHeaderSize:2*QstHeaderSize])
	copy(swapped[QstHeaderSize:2*QstHeaderSize], data[0:QstHeaderSize])

	parsed, err := ParseQst(swapped)
	require.NoError(t, err)

	gotBin, err := parsed.ExtractBin()
	require.NoError(t, err)
	assert.Equal(t, binData, gotBin)
}

func TestParseQstSequentialChunks(t *testing.T) {
	// some servers emit all of one file's chunks before the other's
	binData, datData, _, _ := compressedTestFiles(t)

	qst, err := NewQst("Lost HEAT SWORD",
		QstFile{Filename: "q01.bin", Data: binData},
		QstFile{Filename: "q01.dat", Data: datData},
		false)
	require.NoError(t, err)

	var out []byte
	record, err := packRecord(&qst.BinHeader)
	require.NoError(t, err)
	out = append(out, record...)
	record, err = packRecord(&qst.DatHeader)
	require.NoError(t, err)
	out = append(out, record...)

	binChunks := chunkPayload(PacketIDQuestChunkOnline, qst.BinHeader.Filename, qst.BinPayload)
	datChunks := chunkPayload(PacketIDQuestChunkOnline, qst.DatHeader.Filename, qst.DatPayload)
	for i := range binChunks {
		record, err = packRecord(&binChunks[i])
		require.NoError(t, err)
		out = append(out, record...)
	}
	for i := range datChunks {
		record, err = packRecord(&datChunks[i])
		require.NoError(t, err)
		out = append(out, record...)
	}

	parsed, err := ParseQst(out)
	require.NoError(t, err)

	gotBin, err := parsed.ExtractBin()
	require.NoError(t, err)
	assert.Equal(t, binData, gotBin)
	gotDat, err := parsed.ExtractDat()
	require.NoError(t, err)
	assert.Equal(t, datData, gotDat)
}

func TestParseQstErrors(t *testing.T) {
	binData, datData, _, _ := compressedTestFiles(t)

	qst, err := NewQst("Lost HEAT SWORD",
		QstFile{Filename: "q01.bin", Data: binData},
		QstFile{Filename: "q01.dat", Data: datData},
		false)
	require.NoError(t, err)

	data, err := qst.Bytes()
	require.NoError(t, err)

	t.Run("unknown packet id", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[0] = 0x99
		_, err := ParseQst(bad)
		assert.ErrorIs(t, err, ErrMalformedInput)
	})

	t.Run("impossible pkt_size", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		binary.LittleEndian.PutUint16(bad[2:], 61)
		_, err := ParseQst(bad)
		assert.ErrorIs(t, err, ErrMalformedInput)
	})

	t.Run("truncated stream", func(t *testing.T) {
		_, err := ParseQst(data[:len(data)-QstChunkSize])
		assert.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("truncated final chunk", func(t *testing.T) {
		_, err := ParseQst(data[:len(data)-100])
		assert.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("chunk for unannounced filename", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		// rename the first chunk record's file
		copy(bad[2*QstHeaderSize+4:], []byte("nope.bin\x00"))
		_, err := ParseQst(bad)
		assert.ErrorIs(t, err, ErrMalformedInput)
	})

	t.Run("bad sequence counter", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[2*QstHeaderSize+1] = 7
		_, err := ParseQst(bad)
		assert.ErrorIs(t, err, ErrMalformedInput)
	})

	t.Run("trailing bytes", func(t *testing.T) {
		bad := append(append([]byte(nil), data...), 0x00)
		_, err := ParseQst(bad)
		assert.ErrorIs(t, err, ErrMalformedInput)
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := ParseQst(nil)
		assert.ErrorIs(t, err, ErrInvalidParams)
	})
}

func TestNewQstRejectsBadFilenames(t *testing.T) {
	binData, datData, _, _ := compressedTestFiles(t)

	_, err := NewQst("name",
		QstFile{Filename: "a-filename-that-is-too-long.bin", Data: binData},
		QstFile{Filename: "q01.dat", Data: datData},
		false)
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = NewQst("name",
		QstFile{Filename: "", Data: binData},
		QstFile{Filename: "q01.dat", Data: datData},
		false)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestQstMultiChunkPayloads(t *testing.T) {
	// incompressible-looking payloads spanning several chunks; the
	// container layer does not care what the payload bytes are
	payload := func(n int, seed uint32) []byte {
		data := make([]byte, n)
		for i := range data {
			seed = seed*1664525 + 1013904223
			data[i] = byte(seed >> 24)
		}
		return data
	}
	binData := payload(3000, 1)
	datData := payload(2600, 2)

	qst, err := NewQst("Big Quest",
		QstFile{Filename: "q02.bin", Data: binData},
		QstFile{Filename: "q02.dat", Data: datData},
		false)
	require.NoError(t, err)

	data, err := qst.Bytes()
	require.NoError(t, err)
	require.Equal(t, 2*QstHeaderSize+6*QstChunkSize, len(data))

	// chunks alternate bin/dat while both files have data left, with
	// per-file counters
	offsets := []struct {
		filename string
		counter  byte
	}{
		{"q02.bin", 0}, {"q02.dat", 0},
		{"q02.bin", 1}, {"q02.dat", 1},
		{"q02.bin", 2}, {"q02.dat", 2},
	}
	for i, want := range offsets {
		record := data[2*QstHeaderSize+i*QstChunkSize:]
		assert.Equal(t, want.counter, record[1], "chunk %d counter", i)
		filename := string(bytes.TrimRight(record[4:20], "\x00"))
		assert.Equal(t, want.filename, filename, "chunk %d filename", i)
	}

	// final chunks carry the remainders; the chunk's size field sits
	// right after its 1024-byte data region
	lastBin := data[2*QstHeaderSize+4*QstChunkSize:]
	assert.Equal(t, uint32(3000-2*QstChunkDataSize), binary.LittleEndian.Uint32(lastBin[20+QstChunkDataSize:]))

	parsed, err := ParseQst(data)
	require.NoError(t, err)
	gotBin, err := parsed.ExtractBin()
	require.NoError(t, err)
	assert.Equal(t, binData, gotBin)
	gotDat, err := parsed.ExtractDat()
	require.NoError(t, err)
	assert.Equal(t, datData, gotDat)
}
