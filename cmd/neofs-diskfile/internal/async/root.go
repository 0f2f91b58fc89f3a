package async

import (
	"github.com/spf13/cobra"
)

// Root contains `async` command definition.
var Root = &cobra.Command{
	Use:   "async",
	Short: "Operations with deferred container updates",
}

func init() {
	Root.AddCommand(listCMD)
}
