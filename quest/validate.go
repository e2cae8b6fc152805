package quest

import (
	"strings"

	"github.com/golang/glog"

	"psoquest/charset"
)

// BinFlags is the set of problems found in a decompressed .bin image.
// Validators report flags instead of failing so that callers can apply
// the recovery heuristics below and re-validate.
type BinFlags uint32

const (
	// BinBadObjectCodeOffset: object_code_offset is not 468.
	BinBadObjectCodeOffset BinFlags = 1 << iota

	// BinSizeSmaller: the header's bin_size is smaller than the actual
	// decompressed length.
	BinSizeSmaller

	// BinSizeLarger: the header's bin_size is larger than the actual
	// decompressed length.
	BinSizeLarger

	// BinEmptyName: the quest name field is empty.
	BinEmptyName

	// BinUnexpectedEpisode: the episode byte is above 1, suggesting the
	// two identifier bytes hold a single u16 quest number.
	BinUnexpectedEpisode
)

var binFlagNames = map[BinFlags]string{
	BinBadObjectCodeOffset: "BAD_OBJECT_CODE_OFFSET",
	BinSizeSmaller:         "BIN_SIZE_SMALLER",
	BinSizeLarger:          "BIN_SIZE_LARGER",
	BinEmptyName:           "EMPTY_NAME",
	BinUnexpectedEpisode:   "UNEXPECTED_EPISODE",
}

func (f BinFlags) String() string {
	return flagString(uint32(f), func(bit uint32) string { return binFlagNames[BinFlags(bit)] })
}

// DatFlags is the set of problems found in a decompressed .dat image.
type DatFlags uint32

const (
	// DatBadType: a non-sentinel table has a type above 5.
	DatBadType DatFlags = 1 << iota

	// DatTableBodySizeMismatch: a non-sentinel table's table_size does
	// not equal table_body_size + 16.
	DatTableBodySizeMismatch

	// DatEmptyTableMidfile: an all-zero table header appears before
	// the end of the buffer.
	DatEmptyTableMidfile

	// DatEOFEmptyTable: an all-zero table header sits exactly at the
	// end of the buffer. This is how a well-formed .dat ends, so the
	// flag is informational, not an error.
	DatEOFEmptyTable
)

var datFlagNames = map[DatFlags]string{
	DatBadType:               "BAD_TYPE",
	DatTableBodySizeMismatch: "TABLE_BODY_SIZE_MISMATCH",
	DatEmptyTableMidfile:     "EMPTY_TABLE_MIDFILE",
	DatEOFEmptyTable:         "EOF_EMPTY_TABLE",
}

func (f DatFlags) String() string {
	return flagString(uint32(f), func(bit uint32) string { return datFlagNames[DatFlags(bit)] })
}

func flagString(flags uint32, name func(uint32) string) string {
	if flags == 0 {
		return "none"
	}
	var parts []string
	for bit := uint32(1); bit != 0 && bit <= flags; bit <<= 1 {
		if flags&bit != 0 {
			parts = append(parts, name(bit))
		}
	}
	return strings.Join(parts, "|")
}

// ValidateBin checks a parsed bin against its actual decompressed
// length. It is pure and idempotent: the same bin always yields the
// same flags.
func ValidateBin(b *Bin) BinFlags {
	var flags BinFlags

	if b.Header.ObjectCodeOffset != BinHeaderSize {
		flags |= BinBadObjectCodeOffset
	}

	declared := int(b.Header.BinSize)
	switch {
	case declared < len(b.Data):
		flags |= BinSizeSmaller
	case declared > len(b.Data):
		flags |= BinSizeLarger
	}

	if len(charset.Unpad(b.Header.Name)) == 0 {
		flags |= BinEmptyName
	}

	if b.Header.EpisodeByte > 1 && !b.NumberIsWord {
		flags |= BinUnexpectedEpisode
	}

	return flags
}

// ValidateDat walks the table headers of a decompressed .dat image and
// reports what it finds. Pure and idempotent.
func ValidateDat(data []byte) DatFlags {
	var flags DatFlags

	walkDat(data, func(offset int, header DatTableHeader, body []byte) bool {
		if header.isZero() {
			if offset+DatTableHeaderSize == len(data) {
				flags |= DatEOFEmptyTable
			} else {
				flags |= DatEmptyTableMidfile
			}
			return true
		}
		if header.Type > uint32(DatTableChallengeMode) {
			flags |= DatBadType
		}
		if header.TableSize != header.TableBodySize+DatTableHeaderSize {
			flags |= DatTableBodySizeMismatch
		}
		return true
	})

	return flags
}

// RecoverBin applies the documented recovery heuristics for observed
// real-world .bin corruption and returns the flags that remain:
//
//   - BIN_SIZE_SMALLER: the declared bin_size is trusted and the image
//     truncated to it.
//   - BIN_SIZE_LARGER by exactly one byte: a single zero byte is
//     appended.
//   - UNEXPECTED_EPISODE: the identifier is taken as a u16 quest
//     number; nothing in the image changes.
//
// These heuristics are a deliberate, narrow policy; anything outside
// them is left flagged for the caller to surface.
func RecoverBin(b *Bin, flags BinFlags) BinFlags {
	if flags&BinSizeSmaller != 0 && int(b.Header.BinSize) >= BinHeaderSize {
		glog.Warningf("bin image is larger than its declared bin_size %d; truncating", b.Header.BinSize)
		b.Data = b.Data[:b.Header.BinSize]
		flags &^= BinSizeSmaller
	}

	if flags&BinSizeLarger != 0 && len(b.Data)+1 == int(b.Header.BinSize) {
		glog.Warningf("bin image is one byte short of its declared bin_size %d; appending a zero byte", b.Header.BinSize)
		b.Data = append(b.Data, 0)
		flags &^= BinSizeLarger
	}

	if flags&BinUnexpectedEpisode != 0 {
		glog.Warningf("episode byte is %d; treating the quest identifier as the 16-bit number %d",
			b.Header.EpisodeByte, b.Header.QuestNumberWord())
		b.NumberIsWord = true
		flags &^= BinUnexpectedEpisode
	}

	return flags
}

// RecoverDat applies the documented recovery heuristic for .dat files:
// a mid-file all-zero table header is treated as the end of the file
// and everything after it is discarded. Returns the flags that remain.
func RecoverDat(d *Dat, flags DatFlags) DatFlags {
	if flags&DatEmptyTableMidfile != 0 {
		end := walkDat(d.Data, func(int, DatTableHeader, []byte) bool { return true })
		glog.Warningf("dat has an all-zero table header before the end of the image; truncating %d trailing bytes",
			len(d.Data)-end)
		d.Data = d.Data[:end]
		flags &^= DatEmptyTableMidfile
		flags |= DatEOFEmptyTable
	}
	return flags
}
