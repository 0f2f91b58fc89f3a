package inspect

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	common "github.com/nspcc-dev/neofs-diskfile/cmd/neofs-diskfile/internal"
	"github.com/nspcc-dev/neofs-diskfile/pkg/core/timestamp"
	"github.com/nspcc-dev/neofs-diskfile/pkg/local_object_storage/diskfile"
	"github.com/nspcc-dev/neofs-diskfile/pkg/local_object_storage/util/logicerr"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	vConfig    string
	vDevice    string
	vPartition string
	vAccount   string
	vContainer string
	vObject    string
	vPolicy    int
	vFragIndex int
)

// Root contains `inspect` command definition.
var Root = &cobra.Command{
	Use:   "inspect",
	Short: "Object state",
	Long:  `Resolve on-disk state of an object and print its files, timestamps and metadata.`,
	Args:  cobra.NoArgs,
	RunE:  inspectFunc,
}

func init() {
	common.AddConfigFileFlag(Root, &vConfig)
	common.AddPolicyFlag(Root, &vPolicy)
	common.AddDeviceFlag(Root, &vDevice)

	common.AddRequiredFlag(Root, &vPartition, "partition", "Partition")
	common.AddRequiredFlag(Root, &vAccount, "account", "Account")
	common.AddRequiredFlag(Root, &vContainer, "container", "Container")
	common.AddRequiredFlag(Root, &vObject, "object", "Object")
	Root.Flags().IntVar(&vFragIndex, "frag-index", -1, "Fragment index of erasure coded object, any if not set")
}

func inspectFunc(cmd *cobra.Command, _ []string) error {
	env, err := common.Open(vConfig, "")
	if err != nil {
		return err
	}
	defer func() { common.ExitOnErr(cmd, env.Close()) }()

	m, err := env.Manager(vPolicy)
	if err != nil {
		return err
	}

	var prm diskfile.ResolvePrm
	if vFragIndex >= 0 {
		prm.SetFragIndex(vFragIndex)
	}

	df, err := m.DiskFile(vDevice, vPartition, vAccount, vContainer, vObject, prm)
	if err != nil {
		return err
	}
	defer df.Close()

	cmd.Printf("Hash directory: %s\n", df.HashDir())

	err = df.Open()
	if err != nil {
		var de *diskfile.DeletedError
		if errors.As(err, &de) {
			cmd.Printf("Deleted at %s\n", de.Timestamp.Internal())
			printMetadata(cmd, de.Metadata)
			return nil
		}
		if logicerr.Is(err) {
			return fmt.Errorf("invalid object files: %w", err)
		}
		return err
	}

	st, err := df.State()
	if err != nil {
		return err
	}
	md, err := df.Metadata()
	if err != nil {
		return err
	}

	printState(cmd, df, st)
	printMetadata(cmd, md)
	return nil
}

func fileName(fi *diskfile.FileInfo) string {
	if fi == nil {
		return ""
	}
	return fi.Filename
}

func printState(cmd *cobra.Command, df *diskfile.DiskFile, st *diskfile.State) {
	out := tablewriter.NewWriter(cmd.OutOrStdout())
	out.SetHeader([]string{"Property", "Value"})
	out.SetAutoWrapText(false)

	out.Append([]string{"Name", df.Name()})
	out.Append([]string{"Data file", fileName(st.Data)})
	out.Append([]string{"Meta file", fileName(st.Meta)})
	out.Append([]string{"Content type file", fileName(st.CType)})

	if ts, err := df.Timestamp(); err == nil {
		out.Append([]string{"Timestamp", ts.Internal()})
	}
	if ts, err := df.DataTimestamp(); err == nil {
		out.Append([]string{"Data timestamp", ts.Internal()})
	}
	if ts, err := df.DurableTimestamp(); err == nil && ts != nil {
		out.Append([]string{"Durable timestamp", ts.Internal()})
	}
	if ts, err := df.ContentTypeTimestamp(); err == nil {
		out.Append([]string{"Content type timestamp", ts.Internal()})
	}
	if n, err := df.ContentLength(); err == nil {
		out.Append([]string{"Content length", strconv.FormatInt(n, 10)})
	}
	if frags, err := df.Fragments(); err == nil {
		for _, ts := range slices.SortedFunc(maps.Keys(frags), func(a, b timestamp.Timestamp) int { return a.Compare(b) }) {
			out.Append([]string{"Fragments " + ts.Internal(), joinInts(frags[ts])})
		}
	}

	out.Render()
}

func joinInts(v []int) string {
	ss := make([]string, len(v))
	for i := range v {
		ss[i] = strconv.Itoa(v[i])
	}
	return strings.Join(ss, ",")
}

func printMetadata(cmd *cobra.Command, md map[string]string) {
	out := tablewriter.NewWriter(cmd.OutOrStdout())
	out.SetHeader([]string{"Key", "Value"})
	out.SetAutoWrapText(false)

	for _, k := range slices.Sorted(maps.Keys(md)) {
		out.Append([]string{k, md[k]})
	}

	out.Render()
}
