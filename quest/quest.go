package quest

import (
	"fmt"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"psoquest/prs"
)

// SourceFormat identifies which delivery form a quest was loaded from.
type SourceFormat int

const (
	SourceBinDat SourceFormat = iota
	SourceOnlineQst
	SourceDownloadQst
)

func (f SourceFormat) String() string {
	switch f {
	case SourceBinDat:
		return "raw .bin/.dat"
	case SourceOnlineQst:
		return fmt.Sprintf("online .qst (0x%02X)", PacketIDQuestHeaderOnline)
	case SourceDownloadQst:
		return fmt.Sprintf("download/offline .qst (0x%02X)", PacketIDQuestHeaderDownload)
	default:
		return "unknown"
	}
}

// Quest is a fully loaded quest: both decompressed files plus the
// validation flags observed while loading. Recovery heuristics have
// already been applied by the time a Quest exists; flags that remain in
// the residual sets could not be repaired.
type Quest struct {
	Bin    *Bin
	Dat    *Dat
	Source SourceFormat

	// BinIssues and DatIssues are the flags found by the first
	// validation pass, before recovery.
	BinIssues BinFlags
	DatIssues DatFlags

	// BinResidual and DatResidual are the flags still present after
	// recovery. DatEOFEmptyTable is expected and not an issue.
	BinResidual BinFlags
	DatResidual DatFlags
}

// validateAndRecover runs both validators, applies the recovery
// heuristics, and re-validates to establish the residual flag sets.
func (q *Quest) validateAndRecover() {
	q.BinIssues = ValidateBin(q.Bin)
	RecoverBin(q.Bin, q.BinIssues)
	q.BinResidual = ValidateBin(q.Bin)

	q.DatIssues = ValidateDat(q.Dat.Data)
	RecoverDat(q.Dat, q.DatIssues)
	q.DatResidual = ValidateDat(q.Dat.Data)
}

// ValidationIssues returns the flags recovery could not clear, or nil
// when the quest is usable. A .dat is required to end with its all-zero
// table header; its absence is reported even though it has no flag of
// its own beyond the missing DatEOFEmptyTable.
func (q *Quest) ValidationIssues() error {
	datResidual := q.DatResidual &^ DatEOFEmptyTable
	binResidual := q.BinResidual
	missingEOF := q.DatResidual&DatEOFEmptyTable == 0

	if binResidual == 0 && datResidual == 0 && !missingEOF {
		return nil
	}
	return &ValidationError{BinFlags: binResidual, DatFlags: datResidual, MissingDatEOF: missingEOF}
}

// loadBin loads a .bin file's bytes, which may be PRS-compressed or
// already decompressed. Compressed data is the common case and is
// probed first; the probe is accepted when the decompressed image
// carries the expected object code offset.
func loadBin(data []byte) (*Bin, error) {
	if len(data) == 0 {
		return nil, ErrInvalidParams
	}

	if decompressed, err := prs.Decompress(data); err == nil {
		if bin, err := ParseBin(decompressed); err == nil && bin.Header.ObjectCodeOffset == BinHeaderSize {
			return bin, nil
		}
	}

	glog.V(1).Info("bin data did not decompress to a quest header; reading it as uncompressed")
	return ParseBin(append([]byte(nil), data...))
}

// loadDat loads a .dat file's bytes, compressed or not. The probe is
// accepted when the decompressed image walks to an all-zero table
// header.
func loadDat(data []byte) (*Dat, error) {
	if len(data) == 0 {
		return nil, ErrInvalidParams
	}

	if decompressed, err := prs.Decompress(data); err == nil {
		if flags := ValidateDat(decompressed); flags&(DatEOFEmptyTable|DatEmptyTableMidfile) != 0 {
			if dat, err := ParseDat(decompressed); err == nil {
				return dat, nil
			}
		}
	}

	glog.V(1).Info("dat data did not decompress to a table list; reading it as uncompressed")
	return ParseDat(append([]byte(nil), data...))
}

// FromBinDatBytes loads a quest from its two file buffers, each either
// PRS-compressed or raw. Validation runs and recovery is applied; check
// ValidationIssues for anything that could not be repaired.
func FromBinDatBytes(binData, datData []byte) (*Quest, error) {
	bin, err := loadBin(binData)
	if err != nil {
		return nil, errors.Wrap(err, "loading quest bin")
	}
	dat, err := loadDat(datData)
	if err != nil {
		return nil, errors.Wrap(err, "loading quest dat")
	}

	q := &Quest{Bin: bin, Dat: dat, Source: SourceBinDat}
	q.validateAndRecover()
	return q, nil
}

// FromQstBytes loads a quest from a framed .qst file, decrypting the
// payloads first when it is a download qst.
func FromQstBytes(data []byte) (*Quest, error) {
	qst, err := ParseQst(data)
	if err != nil {
		return nil, errors.Wrap(err, "parsing qst container")
	}

	compressedBin, err := qst.ExtractBin()
	if err != nil {
		return nil, errors.Wrap(err, "extracting bin from qst")
	}
	compressedDat, err := qst.ExtractDat()
	if err != nil {
		return nil, errors.Wrap(err, "extracting dat from qst")
	}

	decompressedBin, err := prs.Decompress(compressedBin)
	if err != nil {
		return nil, errors.Wrap(err, "decompressing bin from qst")
	}
	decompressedDat, err := prs.Decompress(compressedDat)
	if err != nil {
		return nil, errors.Wrap(err, "decompressing dat from qst")
	}

	bin, err := ParseBin(decompressedBin)
	if err != nil {
		return nil, errors.Wrap(err, "parsing bin from qst")
	}
	dat, err := ParseDat(decompressedDat)
	if err != nil {
		return nil, errors.Wrap(err, "parsing dat from qst")
	}

	source := SourceOnlineQst
	if qst.IsDownload() {
		source = SourceDownloadQst
	}

	q := &Quest{Bin: bin, Dat: dat, Source: source}
	q.validateAndRecover()
	return q, nil
}

// binFilename and datFilename derive the embedded chunk filenames from
// the quest number, which is what servers conventionally name them.
func (q *Quest) binFilename() string {
	return fmt.Sprintf("quest%d.bin", q.Bin.Header.QuestNumberWord())
}

func (q *Quest) datFilename() string {
	return fmt.Sprintf("quest%d.dat", q.Bin.Header.QuestNumberWord())
}

// ToRawBinDat converts the quest to decompressed .bin and .dat file
// buffers. The download flag is cleared; raw files are not a memory
// card delivery form.
func (q *Quest) ToRawBinDat() (binData []byte, datData []byte, err error) {
	if err := q.ValidationIssues(); err != nil {
		return nil, nil, err
	}
	q.Bin.SetDownload(false)

	binData, err = q.Bin.Bytes()
	if err != nil {
		return nil, nil, err
	}
	datData, err = q.Dat.Bytes()
	if err != nil {
		return nil, nil, err
	}
	return binData, datData, nil
}

// ToPrsBinDat converts the quest to PRS-compressed .bin and .dat file
// buffers, with the download flag cleared.
func (q *Quest) ToPrsBinDat() (binData []byte, datData []byte, err error) {
	rawBin, rawDat, err := q.ToRawBinDat()
	if err != nil {
		return nil, nil, err
	}

	binData, err = prs.Compress(rawBin)
	if err != nil {
		return nil, nil, errors.Wrap(err, "compressing bin")
	}
	datData, err = prs.Compress(rawDat)
	if err != nil {
		return nil, nil, errors.Wrap(err, "compressing dat")
	}
	return binData, datData, nil
}

// ToOnlineQst converts the quest to an online .qst file buffer
// (packet ids 0x44/0x13, unencrypted). The download flag is cleared.
func (q *Quest) ToOnlineQst() ([]byte, error) {
	return q.toQst(false)
}

// ToOfflineQst converts the quest to a download .qst file buffer
// (packet ids 0xA6/0xA7) with the payloads wrapped and encrypted. The
// download flag is set; the client requires it to find the quest on a
// memory card.
func (q *Quest) ToOfflineQst() ([]byte, error) {
	return q.toQst(true)
}

func (q *Quest) toQst(download bool) ([]byte, error) {
	if err := q.ValidationIssues(); err != nil {
		return nil, err
	}
	q.Bin.SetDownload(download)

	rawBin, err := q.Bin.Bytes()
	if err != nil {
		return nil, err
	}
	rawDat, err := q.Dat.Bytes()
	if err != nil {
		return nil, err
	}

	compressedBin, err := prs.Compress(rawBin)
	if err != nil {
		return nil, errors.Wrap(err, "compressing bin")
	}
	compressedDat, err := prs.Compress(rawDat)
	if err != nil {
		return nil, errors.Wrap(err, "compressing dat")
	}

	name, err := q.Bin.Header.NameString()
	if err != nil {
		return nil, errors.Wrap(err, "decoding quest name")
	}

	qst, err := NewQst(name,
		QstFile{Filename: q.binFilename(), Data: compressedBin, DecompressedSize: len(rawBin)},
		QstFile{Filename: q.datFilename(), Data: compressedDat, DecompressedSize: len(rawDat)},
		download)
	if err != nil {
		return nil, err
	}
	return qst.Bytes()
}
