package hashes

import (
	"path/filepath"
	"slices"

	common "github.com/nspcc-dev/neofs-diskfile/cmd/neofs-diskfile/internal"
	"github.com/nspcc-dev/neofs-diskfile/pkg/local_object_storage/diskfile"
	"github.com/spf13/cobra"
)

var (
	vConfig      string
	vMetricsFile string
	vDevice      string
	vPartitions  []string
	vRecalculate []string
	vPolicy      int
	vFormat      string
)

// Root contains `hashes` command definition.
var Root = &cobra.Command{
	Use:   "hashes",
	Short: "Partition suffix hashes",
	Long: `Print suffix hashes of device partitions, all partitions of the device if none is set.
Hashes are recalculated where invalidated and persisted.`,
	Args: cobra.NoArgs,
	RunE: hashesFunc,
}

func init() {
	common.AddConfigFileFlag(Root, &vConfig)
	common.AddMetricsFileFlag(Root, &vMetricsFile)
	common.AddPolicyFlag(Root, &vPolicy)
	common.AddFormatFlag(Root, &vFormat)
	common.AddDeviceFlag(Root, &vDevice)

	Root.Flags().StringSliceVar(&vPartitions, "partition", nil, "Partitions")
	Root.Flags().StringSliceVar(&vRecalculate, "recalculate", nil, "Suffixes to rehash unconditionally")
}

func hashesFunc(cmd *cobra.Command, _ []string) error {
	env, err := common.Open(vConfig, vMetricsFile)
	if err != nil {
		return err
	}
	defer func() { common.ExitOnErr(cmd, env.Close()) }()

	m, err := env.Manager(vPolicy)
	if err != nil {
		return err
	}

	partitions := vPartitions
	if len(partitions) == 0 {
		devPath, err := m.DevicePath(vDevice)
		if err != nil {
			return err
		}
		partitions = m.ListDir(filepath.Join(devPath, m.Policy().DataDir()))
		slices.Sort(partitions)
	}

	res := make(map[string]diskfile.PartitionHashes, len(partitions))
	for _, p := range partitions {
		h, err := m.GetHashes(vDevice, p, vRecalculate)
		if err != nil {
			return common.Errf("get hashes of partition "+p+": %w", err)
		}
		res[p] = h
	}

	return common.Print(cmd.OutOrStdout(), vFormat, res)
}
