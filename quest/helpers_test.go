package quest

import (
	"encoding/binary"
)

// The test images below are built by hand with encoding/binary rather
// than through the package's own serializers, so layout bugs cannot
// cancel each other out.

type testBinParams struct {
	questNumber      uint8
	episode          uint8
	download         uint8
	unknown          uint8
	name             string
	shortDescription string
	longDescription  string
	objectCode       []byte
	functionOffsets  []byte
	binSizeDelta     int // added to the true size to simulate corruption
}

func defaultTestBinParams() testBinParams {
	objectCode := make([]byte, 40)
	for i := range objectCode {
		objectCode[i] = byte(i * 3)
	}
	functionOffsets := make([]byte, 16)
	for i := range functionOffsets {
		functionOffsets[i] = byte(0xF0 - i)
	}
	return testBinParams{
		questNumber:      58,
		episode:          0,
		name:             "Lost HEAT SWORD",
		shortDescription: "Retrieve a\nweapon from\na Dragon!",
		longDescription:  "Client:  Hopkins, hunter\nQuest:\n My weapon was taken.",
		objectCode:       objectCode,
		functionOffsets:  functionOffsets,
	}
}

func buildTestBin(p testBinParams) []byte {
	total := BinHeaderSize + len(p.objectCode) + len(p.functionOffsets)
	image := make([]byte, 0, total)

	var scratch [4]byte
	u32 := func(v uint32) {
		binary.LittleEndian.PutUint32(scratch[:], v)
		image = append(image, scratch[:]...)
	}
	field := func(s string, width int) {
		f := make([]byte, width)
		copy(f, s)
		image = append(image, f...)
	}

	u32(BinHeaderSize)
	u32(uint32(BinHeaderSize + len(p.objectCode)))
	u32(uint32(total + p.binSizeDelta))
	u32(0xFFFFFFFF)
	image = append(image, p.download, p.unknown, p.questNumber, p.episode)
	field(p.name, BinNameLength)
	field(p.shortDescription, BinShortDescriptionLength)
	field(p.longDescription, BinLongDescriptionLength)
	image = append(image, p.objectCode...)
	image = append(image, p.functionOffsets...)
	return image
}

type testDatTable struct {
	tableType uint32
	area      uint32
	body      []byte
	sizeDelta uint32 // added to table_size to simulate corruption
}

func buildTestDat(tables []testDatTable, endMarker bool, trailing []byte) []byte {
	var image []byte
	var scratch [4]byte
	u32 := func(v uint32) {
		binary.LittleEndian.PutUint32(scratch[:], v)
		image = append(image, scratch[:]...)
	}

	for _, t := range tables {
		u32(t.tableType)
		u32(uint32(len(t.body)) + DatTableHeaderSize + t.sizeDelta)
		u32(t.area)
		u32(uint32(len(t.body)))
		image = append(image, t.body...)
	}
	if endMarker {
		image = append(image, make([]byte, DatTableHeaderSize)...)
	}
	return append(image, trailing...)
}

func defaultTestDatTables() []testDatTable {
	objectBody := make([]byte, 2*ObjectRecordSize)
	for i := range objectBody {
		objectBody[i] = byte(i)
	}
	npcBody := make([]byte, NPCRecordSize)
	for i := range npcBody {
		npcBody[i] = byte(0x80 + i)
	}
	waveBody := make([]byte, 32)
	for i := range waveBody {
		waveBody[i] = byte(0x40 + i)
	}
	return []testDatTable{
		{tableType: uint32(DatTableObject), area: 0, body: objectBody},
		{tableType: uint32(DatTableNPC), area: 1, body: npcBody},
		{tableType: uint32(DatTableWave), area: 2, body: waveBody},
	}
}

func defaultTestDat() []byte {
	return buildTestDat(defaultTestDatTables(), true, nil)
}
