package policyconfig

import (
	"fmt"
	"strconv"

	"github.com/nspcc-dev/neofs-diskfile/cmd/neofs-diskfile/config"
	"github.com/nspcc-dev/neofs-diskfile/pkg/core/storagepolicy"
)

const subsection = "policy"

// Policies reads numbered subsections "0", "1", ... of the "policy"
// section until the first missing one. Without any subsection the single
// default replication policy 0 is returned.
func Policies(c *config.Config) (*storagepolicy.Collection, error) {
	var res []storagepolicy.Policy

	section := c.Sub(subsection)
	for i := 0; ; i++ {
		sc := section.Sub(strconv.Itoa(i))
		if sc.Value("index") == nil && sc.Value("name") == nil {
			break
		}

		p, err := readPolicy(sc, i)
		if err != nil {
			return nil, fmt.Errorf("policy section %d: %w", i, err)
		}
		res = append(res, p)
	}

	if len(res) == 0 {
		res = append(res, storagepolicy.Policy{Index: 0, Default: true})
	}

	return storagepolicy.NewCollection(res...)
}

func readPolicy(c *config.Config, num int) (p storagepolicy.Policy, err error) {
	// cast functions panic on malformed values
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()

	p.Index = num
	if c.Value("index") != nil {
		p.Index = int(config.Int(c, "index"))
	}
	p.Name = config.StringSafe(c, "name")

	p.Type, err = storagepolicy.ParseType(config.StringSafe(c, "type"))
	if err != nil {
		return p, err
	}

	p.ECDataFrags = int(config.IntSafe(c, "ec_data"))
	p.ECParityFrags = int(config.IntSafe(c, "ec_parity"))
	p.FragmentArchiveSize = int(config.IntSafe(c, "fragment_size"))
	p.Default = config.BoolSafe(c, "default")

	return p, nil
}
