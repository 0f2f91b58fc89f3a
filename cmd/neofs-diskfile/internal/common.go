package common

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nspcc-dev/neofs-diskfile/cmd/neofs-diskfile/config"
	loggerconfig "github.com/nspcc-dev/neofs-diskfile/cmd/neofs-diskfile/config/logger"
	policyconfig "github.com/nspcc-dev/neofs-diskfile/cmd/neofs-diskfile/config/policy"
	storageconfig "github.com/nspcc-dev/neofs-diskfile/cmd/neofs-diskfile/config/storage"
	"github.com/nspcc-dev/neofs-diskfile/misc"
	"github.com/nspcc-dev/neofs-diskfile/pkg/local_object_storage/diskfile"
	"github.com/nspcc-dev/neofs-diskfile/pkg/metrics"
	"github.com/nspcc-dev/neofs-diskfile/pkg/util"
	"github.com/nspcc-dev/neofs-diskfile/pkg/util/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

const (
	flagConfig      = "config"
	flagMetricsFile = "metrics-file"
	flagPolicy      = "policy"
	flagFormat      = "format"
	flagDevice      = "device"

	// DefaultPolicy selects the default storage policy.
	DefaultPolicy = -1
)

// Errf returns formatted error in errFmt format if err is not nil.
func Errf(errFmt string, err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf(errFmt, err)
}

// ExitOnErr prints error via cmd and exits with code 1. Does nothing if
// err is nil.
func ExitOnErr(cmd *cobra.Command, err error) {
	if err != nil {
		cmd.PrintErrln(err)
		os.Exit(1)
	}
}

// AddConfigFileFlag adds the config file flag to the command.
func AddConfigFileFlag(cmd *cobra.Command, v *string) {
	cmd.Flags().StringVarP(v, flagConfig, "c", "",
		"Path to the configuration file, environment only if not set")
}

// AddMetricsFileFlag adds the flag setting a file to dump metrics to after
// the command is done.
func AddMetricsFileFlag(cmd *cobra.Command, v *string) {
	cmd.Flags().StringVar(v, flagMetricsFile, "",
		"Write disk file metrics to the file in Prometheus text format")
}

// AddPolicyFlag adds the storage policy index flag to the command.
func AddPolicyFlag(cmd *cobra.Command, v *int) {
	cmd.Flags().IntVar(v, flagPolicy, DefaultPolicy, "Storage policy index, the default policy if not set")
}

// AddDeviceFlag adds the required device name flag to the command.
func AddDeviceFlag(cmd *cobra.Command, v *string) {
	AddRequiredFlag(cmd, v, flagDevice, "Device name under the devices root")
}

// AddRequiredFlag adds the required string flag to the command.
func AddRequiredFlag(cmd *cobra.Command, v *string, name, usage string) {
	addRequired(cmd, cmd.Flags(), v, name, usage)
}

func addRequired(cmd *cobra.Command, ff *pflag.FlagSet, v *string, name, usage string) {
	ff.StringVar(v, name, "", usage)
	_ = cmd.MarkFlagRequired(name)
}

// AddFormatFlag adds the output format flag to the command.
func AddFormatFlag(cmd *cobra.Command, v *string) {
	cmd.Flags().StringVar(v, flagFormat, FormatYAML, "Output format: yaml or json")
}

// Env is the storage environment built from the configuration.
type Env struct {
	Router *diskfile.Router
	Log    *zap.Logger

	pool        util.WorkerPool
	registry    *prometheus.Registry
	metricsFile string
}

// Open reads the configuration and builds the storage environment. The
// metrics are dumped to metricsFile on Close if it is set.
func Open(configFile, metricsFile string) (*Env, error) {
	var opts []config.Option
	if configFile != "" {
		opts = append(opts, config.WithConfigFile(configFile))
	}
	c, err := config.New(opts...)
	if err != nil {
		return nil, err
	}

	var logPrm logger.Prm
	if err := logPrm.SetLevelString(loggerconfig.Level(c)); err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if err := logPrm.SetEncoding(loggerconfig.Encoding(c)); err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	log, err := logger.NewLogger(&logPrm)
	if err != nil {
		return nil, err
	}

	devices, err := storageconfig.Devices(c)
	if err != nil {
		return nil, err
	}
	policies, err := policyconfig.Policies(c)
	if err != nil {
		return nil, err
	}

	pool, err := util.NewWorkerPool(storageconfig.PoolSize(c))
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewDiskFileMetrics(reg, misc.Version)

	r := diskfile.NewRouter(policies,
		diskfile.WithLogger(log),
		diskfile.WithDevices(devices),
		diskfile.WithMountCheck(storageconfig.MountCheck(c)),
		diskfile.WithReclaimAge(storageconfig.ReclaimAge(c)),
		diskfile.WithLockTimeout(storageconfig.LockTimeout(c)),
		diskfile.WithReplicationLock(storageconfig.ReplicationOnePerDevice(c), storageconfig.ReplicationLockTimeout(c)),
		diskfile.WithFallocateReserve(storageconfig.FallocateReserve(c)),
		diskfile.WithLinkat(storageconfig.UseLinkat(c)),
		diskfile.WithSplice(storageconfig.Splice(c)),
		diskfile.WithHashPathAffixes(storageconfig.HashPathPrefix(c), storageconfig.HashPathSuffix(c)),
		diskfile.WithMountCacheTTL(storageconfig.MountCacheTTL(c)),
		diskfile.WithMetrics(m),
		diskfile.WithWorkerPool(pool),
	)

	return &Env{
		Router:      r,
		Log:         log,
		pool:        pool,
		registry:    reg,
		metricsFile: metricsFile,
	}, nil
}

// Manager returns manager of the policy, DefaultPolicy selects the
// default one.
func (e *Env) Manager(policy int) (*diskfile.Manager, error) {
	if policy == DefaultPolicy {
		return e.Router.Default(), nil
	}
	return e.Router.Get(policy)
}

// Close releases the environment and writes metrics if requested.
func (e *Env) Close() error {
	e.pool.Release()
	_ = e.Log.Sync()

	if e.metricsFile != "" {
		if err := prometheus.WriteToTextfile(e.metricsFile, e.registry); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

// Print writes v to w in the format.
func Print(w io.Writer, format string, v any) error {
	switch strings.ToLower(format) {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}
