package audit

import (
	"errors"
	"fmt"
	"io"

	"github.com/nspcc-dev/neofs-diskfile/cmd/internal/cmderr"
	common "github.com/nspcc-dev/neofs-diskfile/cmd/neofs-diskfile/internal"
	"github.com/nspcc-dev/neofs-diskfile/pkg/local_object_storage/diskfile"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	vConfig      string
	vMetricsFile string
	vAuditorType string
	vDevices     []string
	vClear       bool
	vRead        bool
	vLimit       int
	vStrict      bool
)

// exitQuarantined is the exit code of a strict audit which quarantined
// objects.
const exitQuarantined = 2

// Root contains `audit` command definition.
var Root = &cobra.Command{
	Use:   "audit",
	Short: "Audit walk over hash directories",
	Long: `Walk hash directories of all devices and policies, opening every object.
Damaged objects are quarantined. Progress is checkpointed per auditor type,
an interrupted walk resumes from the last checkpointed partition.`,
	Args: cobra.NoArgs,
	RunE: auditFunc,
}

func init() {
	common.AddConfigFileFlag(Root, &vConfig)
	common.AddMetricsFileFlag(Root, &vMetricsFile)

	ff := Root.Flags()
	ff.StringVar(&vAuditorType, "auditor-type", diskfile.DefaultAuditorType, "Auditor type separating checkpoints")
	ff.StringSliceVar(&vDevices, "devices", nil, "Devices to walk, all if not set")
	ff.BoolVar(&vClear, "clear", false, "Drop checkpoints of the auditor type and exit")
	ff.BoolVar(&vRead, "read", false, "Read object data verifying size and checksum")
	ff.IntVar(&vLimit, "limit", 0, "Stop after the number of hash directories, 0 means no limit")
	ff.BoolVar(&vStrict, "strict", false, "Exit with code 2 if any object is quarantined")
}

// Stats summarizes an audit walk.
type Stats struct {
	Checked     int `json:"checked" yaml:"checked"`
	Missing     int `json:"missing" yaml:"missing"`
	Quarantined int `json:"quarantined" yaml:"quarantined"`
	Errors      int `json:"errors" yaml:"errors"`
}

func auditFunc(cmd *cobra.Command, _ []string) error {
	env, err := common.Open(vConfig, vMetricsFile)
	if err != nil {
		return err
	}
	defer func() { common.ExitOnErr(cmd, env.Close()) }()

	if vClear {
		return env.Router.ClearAuditorStatus(vAuditorType)
	}

	c, err := env.Router.AuditCursor(vAuditorType, vDevices...)
	if err != nil {
		return err
	}
	defer c.Close()

	var st Stats
	for vLimit <= 0 || st.Checked < vLimit {
		loc, err := c.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		st.Checked++
		err = auditLocation(env, loc)
		switch {
		case err == nil:
		case diskfile.IsErrNotExist(err):
			st.Missing++
		case diskfile.IsErrQuarantined(err):
			st.Quarantined++
			cmd.Printf("quarantined %s: %v\n", loc.Path, err)
		default:
			st.Errors++
			env.Log.Error("audit failed", zap.String("path", loc.Path), zap.Error(err))
		}
	}

	if err := common.Print(cmd.OutOrStdout(), common.FormatYAML, st); err != nil {
		return err
	}
	if vStrict && st.Quarantined > 0 {
		return cmderr.ExitErr{Code: exitQuarantined, Cause: fmt.Errorf("%d objects quarantined", st.Quarantined)}
	}
	return nil
}

func auditLocation(env *common.Env, loc diskfile.AuditLocation) error {
	df, err := env.Router.DiskFileFromAuditLocation(loc, diskfile.ResolvePrm{})
	if err != nil {
		return err
	}

	if err := df.Open(); err != nil {
		return err
	}
	defer df.Close()

	if !vRead {
		return nil
	}

	r, err := df.Reader()
	if err != nil {
		return err
	}
	defer r.Close()

	if _, err := io.Copy(io.Discard, r); err != nil {
		return fmt.Errorf("read %s: %w", loc.Path, err)
	}
	return nil
}
