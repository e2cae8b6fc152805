package quest

import (
	"encoding/binary"

	"github.com/go-restruct/restruct"
	"github.com/pkg/errors"
)

// DatTableHeaderSize is the size of the header preceding every table in
// a decompressed .dat file. An all-zero header with no body marks the
// end of the file.
const DatTableHeaderSize = 16

// Entity record sizes within table bodies.
const (
	ObjectRecordSize = 68
	NPCRecordSize    = 72
)

// DatTableType tags a .dat table's contents.
type DatTableType uint32

const (
	DatTableObject              DatTableType = 1
	DatTableNPC                 DatTableType = 2
	DatTableWave                DatTableType = 3
	DatTableChallengeModeSpawns DatTableType = 4
	DatTableChallengeMode       DatTableType = 5
)

func (t DatTableType) String() string {
	switch t {
	case DatTableObject:
		return "Object"
	case DatTableNPC:
		return "NPC"
	case DatTableWave:
		return "Wave"
	case DatTableChallengeModeSpawns:
		return "Challenge Mode Spawns"
	case DatTableChallengeMode:
		return "Challenge Mode"
	default:
		return "Unknown"
	}
}

// DatTableHeader mirrors the 16-byte header preceding each table body.
type DatTableHeader struct {
	Type          uint32 `struct:"uint32"`
	TableSize     uint32 `struct:"uint32"`
	Area          uint32 `struct:"uint32"`
	TableBodySize uint32 `struct:"uint32"`
}

func (h *DatTableHeader) isZero() bool {
	return h.Type == 0 && h.TableSize == 0 && h.Area == 0 && h.TableBodySize == 0
}

// DatTable is one table of a .dat file: its header and body bytes.
type DatTable struct {
	Header DatTableHeader
	Body   []byte
}

// TableType returns the table's type tag.
func (t *DatTable) TableType() DatTableType {
	return DatTableType(t.Header.Type)
}

// EntityCount returns how many fixed-size records the body holds for
// Object and NPC tables, and 0 for every other type.
func (t *DatTable) EntityCount() int {
	switch t.TableType() {
	case DatTableObject:
		return len(t.Body) / ObjectRecordSize
	case DatTableNPC:
		return len(t.Body) / NPCRecordSize
	default:
		return 0
	}
}

// AreaName resolves the table's area index against the given episode.
func (t *DatTable) AreaName(episode uint8) string {
	return AreaName(episode, t.Header.Area)
}

// datAreas maps (episode, area index) to the in-game area name.
var datAreas = [2][18]string{
	{
		"Pioneer 2",
		"Forest 1",
		"Forest 2",
		"Caves 1",
		"Caves 2",
		"Caves 3",
		"Mines 1",
		"Mines 2",
		"Ruins 1",
		"Ruins 2",
		"Ruins 3",
		"Under the Dome",
		"Underground Channel",
		"Monitor Room",
		"????",
		"Visual Lobby",
		"VR Spaceship Alpha",
		"VR Temple Alpha",
	},
	{
		"Lab",
		"VR Temple Alpha",
		"VR Temple Beta",
		"VR Spaceship Alpha",
		"VR Spaceship Beta",
		"Central Control Area",
		"Jungle North",
		"Jungle East",
		"Mountain",
		"Seaside",
		"Seabed Upper",
		"Seabed Lower",
		"Cliffs of Gal Da Val",
		"Test Subject Disposal Area",
		"VR Temple Final",
		"VR Spaceship Final",
		"Seaside Night",
		"Control Tower",
	},
}

// AreaName returns the in-game name for an (episode, area) pair, or a
// placeholder for values outside the known tables.
func AreaName(episode uint8, area uint32) string {
	if int(episode) >= len(datAreas) {
		return "Invalid Episode"
	}
	if area >= uint32(len(datAreas[episode])) {
		return "Invalid Area"
	}
	return datAreas[episode][area]
}

// Dat is a decompressed quest .dat file: the table list plus the raw
// decompressed image it was read from.
type Dat struct {
	Tables []DatTable
	Data   []byte
}

// walkDat visits each table header in data, calling visit with the
// byte offset of the header, the header itself, and the body slice
// (clamped to the buffer). The walk stops after the first all-zero
// header, after a table whose body extends past the buffer, when visit
// returns false, or when no further header fits. The returned offset is
// just past the all-zero header, the offset of the header visit
// declined, or the end of the last table visited (which lies beyond the
// buffer when that table's body overruns it).
func walkDat(data []byte, visit func(offset int, header DatTableHeader, body []byte) bool) int {
	offset := 0
	for offset+DatTableHeaderSize <= len(data) {
		var header DatTableHeader
		// 16 fixed bytes; direct reads avoid reflection in the walk
		header.Type = binary.LittleEndian.Uint32(data[offset:])
		header.TableSize = binary.LittleEndian.Uint32(data[offset+4:])
		header.Area = binary.LittleEndian.Uint32(data[offset+8:])
		header.TableBodySize = binary.LittleEndian.Uint32(data[offset+12:])

		bodyStart := offset + DatTableHeaderSize
		bodyEnd := bodyStart + int(header.TableBodySize)
		if bodyEnd > len(data) {
			bodyEnd = len(data)
		}
		if !visit(offset, header, data[bodyStart:bodyEnd]) {
			return offset
		}
		if header.isZero() {
			return offset + DatTableHeaderSize
		}
		offset = bodyStart + int(header.TableBodySize)
	}
	return offset
}

// ParseDat parses a decompressed .dat image into its table list. The
// image is retained, not copied. Like ParseBin this is permissive:
// tables with unknown types or inconsistent sizes are kept so that
// validation can flag them; only an image whose final table body runs
// past the end of the buffer is rejected.
func ParseDat(data []byte) (*Dat, error) {
	if data == nil {
		return nil, ErrInvalidParams
	}

	dat := &Dat{Data: data}
	var truncated bool
	end := walkDat(data, func(offset int, header DatTableHeader, body []byte) bool {
		if header.isZero() {
			return true
		}
		if len(body) < int(header.TableBodySize) {
			truncated = true
			return false
		}
		dat.Tables = append(dat.Tables, DatTable{Header: header, Body: body})
		return true
	})
	if truncated {
		return nil, errors.Wrapf(ErrTruncated, "dat table at offset %d has a body that runs past the end of the image", end)
	}
	return dat, nil
}

// Bytes serializes the dat back to a decompressed image: each table
// header and body verbatim, then the all-zero end marker.
func (d *Dat) Bytes() ([]byte, error) {
	size := DatTableHeaderSize
	for i := range d.Tables {
		size += DatTableHeaderSize + len(d.Tables[i].Body)
	}

	out := make([]byte, 0, size)
	for i := range d.Tables {
		header, err := restruct.Pack(binary.LittleEndian, &d.Tables[i].Header)
		if err != nil {
			return nil, errors.Wrapf(err, "packing dat table header %d", i)
		}
		out = append(out, header...)
		out = append(out, d.Tables[i].Body...)
	}
	out = append(out, make([]byte, DatTableHeaderSize)...)
	return out, nil
}
