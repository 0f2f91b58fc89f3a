package async

import (
	common "github.com/nspcc-dev/neofs-diskfile/cmd/neofs-diskfile/internal"
	"github.com/nspcc-dev/neofs-diskfile/pkg/local_object_storage/diskfile"
	"github.com/spf13/cobra"
)

var (
	vConfig string
	vDevice string
	vPolicy int
	vFormat string
)

var listCMD = &cobra.Command{
	Use:   "list",
	Short: "Deferred updates listing",
	Long:  `List deferred container updates stored on the device.`,
	Args:  cobra.NoArgs,
	RunE:  listFunc,
}

func init() {
	common.AddConfigFileFlag(listCMD, &vConfig)
	common.AddPolicyFlag(listCMD, &vPolicy)
	common.AddFormatFlag(listCMD, &vFormat)
	common.AddDeviceFlag(listCMD, &vDevice)

}

type record struct {
	Path   string               `json:"path" yaml:"path"`
	Update diskfile.AsyncUpdate `json:"update" yaml:"update"`
}

func listFunc(cmd *cobra.Command, _ []string) error {
	env, err := common.Open(vConfig, "")
	if err != nil {
		return err
	}
	defer func() { common.ExitOnErr(cmd, env.Close()) }()

	m, err := env.Manager(vPolicy)
	if err != nil {
		return err
	}

	paths, err := m.ListAsyncUpdates(vDevice)
	if err != nil {
		return err
	}

	res := make([]record, 0, len(paths))
	for _, p := range paths {
		upd, err := diskfile.ReadAsyncUpdate(p)
		if err != nil {
			return common.Errf("read deferred update: %w", err)
		}
		res = append(res, record{Path: p, Update: upd})
	}

	return common.Print(cmd.OutOrStdout(), vFormat, res)
}
