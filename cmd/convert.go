package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
)

type convertFormat string

const (
	formatRawBinDat  convertFormat = "raw_bindat"
	formatPrsBinDat  convertFormat = "prs_bindat"
	formatOnlineQst  convertFormat = "online_qst"
	formatOfflineQst convertFormat = "offline_qst"
)

func parseConvertFormat(s string) (convertFormat, bool) {
	switch f := convertFormat(strings.ToLower(s)); f {
	case formatRawBinDat, formatPrsBinDat, formatOnlineQst, formatOfflineQst:
		return f, true
	}
	return "", false
}

var convertCmd = &cobra.Command{
	Use:   "convert <input files> <format> <output files>",
	Short: "Convert a quest to a different file format",
	Long: `Convert a quest to a different file format.

Input files are either a .bin and .dat pair or a single .qst file; the
same goes for output files, depending on the target format:

  raw_bindat   a .bin and .dat pair, both uncompressed
  prs_bindat   a .bin and .dat pair, both PRS-compressed
  online_qst   a .qst for online play via a server
  offline_qst  a .qst for download to a memory card`,
	Args: cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		inputs, format, outputs, err := collectConvertArgs(args)
		if err != nil {
			return err
		}

		q, err := loadQuestFromArgs(inputs)
		if err != nil {
			return err
		}

		switch format {
		case formatRawBinDat, formatPrsBinDat:
			if len(outputs) != 2 {
				return fmt.Errorf("format %s needs two output files, a .bin and a .dat", format)
			}

			var binData, datData []byte
			if format == formatRawBinDat {
				binData, datData, err = q.ToRawBinDat()
			} else {
				binData, datData, err = q.ToPrsBinDat()
			}
			if err != nil {
				return err
			}
			if err := writeFile(outputs[0], binData); err != nil {
				return err
			}
			return writeFile(outputs[1], datData)

		default:
			if len(outputs) != 1 {
				return fmt.Errorf("format %s needs one output file, a .qst", format)
			}

			var data []byte
			if format == formatOnlineQst {
				data, err = q.ToOnlineQst()
			} else {
				data, err = q.ToOfflineQst()
			}
			if err != nil {
				return err
			}
			return writeFile(outputs[0], data)
		}
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)
}

// collectConvertArgs splits the argument list around the format
// argument, which sits between the input and output file paths.
func collectConvertArgs(args []string) (inputs []string, format convertFormat, outputs []string, err error) {
	formatIndex := -1
	for i, arg := range args {
		if f, ok := parseConvertFormat(arg); ok {
			if formatIndex >= 0 {
				return nil, "", nil, fmt.Errorf("more than one conversion format specified")
			}
			formatIndex = i
			format = f
		}
	}

	switch {
	case formatIndex < 0:
		return nil, "", nil, fmt.Errorf("no conversion format specified; expected one of raw_bindat, prs_bindat, online_qst, offline_qst")
	case formatIndex == 0:
		return nil, "", nil, fmt.Errorf("no input file(s) provided")
	case formatIndex == len(args)-1:
		return nil, "", nil, fmt.Errorf("no output file(s) provided")
	}

	inputs = args[:formatIndex]
	outputs = args[formatIndex+1:]
	if len(inputs) > 2 {
		return nil, "", nil, fmt.Errorf("too many input files; expected a .bin and .dat pair or one .qst")
	}
	return inputs, format, outputs, nil
}

func writeFile(path string, data []byte) error {
	glog.V(1).Infof("writing %d bytes to %s", len(data), path)
	return os.WriteFile(path, data, 0644)
}
