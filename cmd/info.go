package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"psoquest/quest"
)

var infoYAML bool

var infoCmd = &cobra.Command{
	Use:   "info <input.bin> <input.dat> | info <input.qst>",
	Short: "Display info about a quest",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := loadQuestFromArgs(args)
		if err != nil {
			return err
		}

		report := q.BuildReport()
		if infoYAML {
			out, err := yaml.Marshal(report)
			if err != nil {
				return errors.Wrap(err, "marshalling report")
			}
			fmt.Print(string(out))
		} else {
			fmt.Print(report.Render())
		}

		// exit non-zero when validation problems survived recovery
		return q.ValidationIssues()
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)

	infoCmd.Flags().BoolVar(&infoYAML, "yaml", false, "emit the report as YAML instead of text")
}

func hasExtension(path, ext string) bool {
	return strings.HasSuffix(strings.ToLower(path), ext)
}

// loadQuestFromArgs loads a quest from either a single .qst path or a
// .bin and .dat path pair (in either order, detected by extension).
func loadQuestFromArgs(args []string) (*quest.Quest, error) {
	if len(args) == 1 {
		path := args[0]
		if !hasExtension(path, ".qst") {
			return nil, fmt.Errorf("a single input file must be a .qst file: %s", path)
		}

		glog.V(1).Infof("reading qst file %s", path)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return quest.FromQstBytes(data)
	}

	binPath, datPath := args[0], args[1]
	if hasExtension(binPath, ".dat") || hasExtension(datPath, ".bin") {
		binPath, datPath = datPath, binPath
	}
	if !hasExtension(binPath, ".bin") || !hasExtension(datPath, ".dat") {
		return nil, fmt.Errorf("expected a .bin and a .dat file, got %s and %s", args[0], args[1])
	}

	glog.V(1).Infof("reading bin file %s and dat file %s", binPath, datPath)
	binData, err := os.ReadFile(binPath)
	if err != nil {
		return nil, err
	}
	datData, err := os.ReadFile(datPath)
	if err != nil {
		return nil, err
	}
	return quest.FromBinDatBytes(binData, datData)
}
