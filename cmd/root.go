package cmd

import (
	goflag "flag"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "psoquest",
	Short: "Tool for Gamecube quest .bin/.dat and .qst files",
	Long: `Tool for Gamecube quest files.

A quest is a pair of PRS-compressed files: a scripted .bin file and a
.dat file cataloguing objects, NPCs, waves and spawn points per area.
Servers deliver them inside framed .qst containers, either for online
play (unencrypted) or for download to a memory card (encrypted).`,
	SilenceUsage: true,
}

// Execute runs the root command. Errors have already been printed when
// this returns.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// glog registers its flags (-v, -logtostderr, ...) on the standard
	// flag set; expose them through cobra
	rootCmd.PersistentFlags().AddGoFlagSet(goflag.CommandLine)
}
