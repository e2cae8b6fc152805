package quest

import (
	"fmt"
	"strings"
)

// Report is the structured result of inspecting a quest. It carries
// every header field (both quest number interpretations included, since
// producers disagree on which is correct), the .dat table listing, and
// the validation flags observed while loading.
type Report struct {
	Format string `yaml:"format"`

	Bin BinReport `yaml:"bin"`
	Dat DatReport `yaml:"dat"`

	Validation ValidationReport `yaml:"validation"`
}

type BinReport struct {
	Name             string `yaml:"name"`
	ShortDescription string `yaml:"short_description"`
	LongDescription  string `yaml:"long_description"`

	Download        bool   `yaml:"download"`
	QuestNumber     uint8  `yaml:"quest_number"`
	QuestNumberWord uint16 `yaml:"quest_number_word"`
	Episode         uint8  `yaml:"episode"`

	Reserved uint32 `yaml:"reserved"`
	Unknown  uint8  `yaml:"unknown"`

	DecompressedSize          int    `yaml:"decompressed_size"`
	ObjectCodeOffset          uint32 `yaml:"object_code_offset"`
	ObjectCodeSize            int    `yaml:"object_code_size"`
	FunctionOffsetTableOffset uint32 `yaml:"function_offset_table_offset"`
	FunctionOffsetTableSize   int    `yaml:"function_offset_table_size"`
}

type DatReport struct {
	DecompressedSize int              `yaml:"decompressed_size"`
	Tables           []DatTableReport `yaml:"tables"`
}

type DatTableReport struct {
	Index       int    `yaml:"index"`
	Type        string `yaml:"type"`
	TypeValue   uint32 `yaml:"type_value"`
	Area        string `yaml:"area"`
	AreaValue   uint32 `yaml:"area_value"`
	BodySize    int    `yaml:"body_size"`
	EntityCount int    `yaml:"entity_count,omitempty"`
}

type ValidationReport struct {
	BinIssues   string `yaml:"bin_issues"`
	DatIssues   string `yaml:"dat_issues"`
	BinResidual string `yaml:"bin_residual"`
	DatResidual string `yaml:"dat_residual"`
}

// BuildReport inspects the quest and produces its report. Strings that
// fail Shift-JIS decoding are reported as empty rather than failing the
// whole report.
func (q *Quest) BuildReport() *Report {
	name, _ := q.Bin.Header.NameString()
	short, _ := q.Bin.Header.ShortDescriptionString()
	long, _ := q.Bin.Header.LongDescriptionString()

	report := &Report{
		Format: q.Source.String(),
		Bin: BinReport{
			Name:             name,
			ShortDescription: short,
			LongDescription:  long,

			Download:        q.Bin.Header.IsDownload(),
			QuestNumber:     q.Bin.Header.QuestNumber(),
			QuestNumberWord: q.Bin.Header.QuestNumberWord(),
			Episode:         q.Bin.Header.Episode(),

			Reserved: q.Bin.Header.Reserved,
			Unknown:  q.Bin.Header.Unknown,

			DecompressedSize:          len(q.Bin.Data),
			ObjectCodeOffset:          q.Bin.Header.ObjectCodeOffset,
			ObjectCodeSize:            len(q.Bin.ObjectCode()),
			FunctionOffsetTableOffset: q.Bin.Header.FunctionOffsetTableOffset,
			FunctionOffsetTableSize:   len(q.Bin.FunctionOffsetTable()),
		},
		Dat: DatReport{
			DecompressedSize: len(q.Dat.Data),
		},
		Validation: ValidationReport{
			BinIssues:   q.BinIssues.String(),
			DatIssues:   (q.DatIssues &^ DatEOFEmptyTable).String(),
			BinResidual: q.BinResidual.String(),
			DatResidual: (q.DatResidual &^ DatEOFEmptyTable).String(),
		},
	}

	episode := q.Bin.Header.Episode()
	for i := range q.Dat.Tables {
		table := &q.Dat.Tables[i]
		report.Dat.Tables = append(report.Dat.Tables, DatTableReport{
			Index:       i,
			Type:        table.TableType().String(),
			TypeValue:   table.Header.Type,
			Area:        table.AreaName(episode),
			AreaValue:   table.Header.Area,
			BodySize:    len(table.Body),
			EntityCount: table.EntityCount(),
		})
	}

	return report
}

func indentDescription(description string) string {
	return strings.ReplaceAll(strings.TrimSpace(description), "\n", "\n                                  ")
}

// Render formats the report the way the reference tool prints it.
func (r *Report) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "QUEST FILE FORMAT: %s\n\n", r.Format)

	b.WriteString("QUEST .BIN FILE\n")
	b.WriteString("======================================================================\n")
	fmt.Fprintf(&b, "name:                             %s\n", r.Bin.Name)
	fmt.Fprintf(&b, "download flag:                    %t\n", r.Bin.Download)
	fmt.Fprintf(&b, "quest_number:                     as byte: %d    as word: %d\n", r.Bin.QuestNumber, r.Bin.QuestNumberWord)
	fmt.Fprintf(&b, "episode:                          %d (%d)\n", r.Bin.Episode, r.Bin.Episode+1)
	fmt.Fprintf(&b, "reserved:                         0x%08x\n", r.Bin.Reserved)
	fmt.Fprintf(&b, "unknown:                          0x%02x\n", r.Bin.Unknown)
	fmt.Fprintf(&b, "decompressed size:                %d\n", r.Bin.DecompressedSize)
	fmt.Fprintf(&b, "object_code_offset:               %d\n", r.Bin.ObjectCodeOffset)
	fmt.Fprintf(&b, "object_code size:                 %d\n", r.Bin.ObjectCodeSize)
	fmt.Fprintf(&b, "function_offset_table_offset:     %d\n", r.Bin.FunctionOffsetTableOffset)
	fmt.Fprintf(&b, "function_offset_table size:       %d\n", r.Bin.FunctionOffsetTableSize)
	fmt.Fprintf(&b, "\nshort_description:                %s\n", indentDescription(r.Bin.ShortDescription))
	fmt.Fprintf(&b, "\nlong_description:                 %s\n", indentDescription(r.Bin.LongDescription))

	b.WriteString("\n\nQUEST .DAT FILE\n")
	b.WriteString("======================================================================\n")
	fmt.Fprintf(&b, "decompressed size:                %d\n\n", r.Dat.DecompressedSize)
	for _, table := range r.Dat.Tables {
		if table.EntityCount > 0 {
			fmt.Fprintf(&b, "%3d %6d %-22s %-30s %5d\n", table.Index, table.BodySize, table.Type, table.Area, table.EntityCount)
		} else {
			fmt.Fprintf(&b, "%3d %6d %-22s %-30s\n", table.Index, table.BodySize, table.Type, table.Area)
		}
	}

	b.WriteString("\nVALIDATION\n")
	b.WriteString("======================================================================\n")
	fmt.Fprintf(&b, "bin issues found:                 %s\n", r.Validation.BinIssues)
	fmt.Fprintf(&b, "dat issues found:                 %s\n", r.Validation.DatIssues)
	fmt.Fprintf(&b, "bin issues after recovery:        %s\n", r.Validation.BinResidual)
	fmt.Fprintf(&b, "dat issues after recovery:        %s\n", r.Validation.DatResidual)

	return b.String()
}
