package main

import (
	"os"

	"github.com/nspcc-dev/neofs-diskfile/cmd/internal/cmderr"
	"github.com/nspcc-dev/neofs-diskfile/cmd/neofs-diskfile/internal/async"
	"github.com/nspcc-dev/neofs-diskfile/cmd/neofs-diskfile/internal/audit"
	"github.com/nspcc-dev/neofs-diskfile/cmd/neofs-diskfile/internal/hashes"
	"github.com/nspcc-dev/neofs-diskfile/cmd/neofs-diskfile/internal/inspect"
	"github.com/nspcc-dev/neofs-diskfile/misc"
	"github.com/spf13/cobra"
)

var command = &cobra.Command{
	Use:           "neofs-diskfile",
	Short:         "NeoFS Disk File Tool",
	Long:          `NeoFS Disk File Tool inspects and maintains object devices: hash indexes, audit walks and deferred updates.`,
	RunE:          entryPoint,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func entryPoint(cmd *cobra.Command, _ []string) error {
	printVersion, _ := cmd.Flags().GetBool("version")
	if printVersion {
		cmd.Print(misc.BuildInfo("NeoFS Disk File Tool"))

		return nil
	}

	return cmd.Usage()
}

func init() {
	// use stdout as default output for cmd.Print()
	command.SetOut(os.Stdout)
	command.Flags().Bool("version", false, "Application version")
	command.AddCommand(
		hashes.Root,
		audit.Root,
		inspect.Root,
		async.Root,
	)
}

func main() {
	err := command.Execute()
	cmderr.ExitOnErr(err)
}
