package diskfile

import (
	"bytes"
	"encoding/json"

	"github.com/nspcc-dev/neofs-diskfile/pkg/core/timestamp"
)

// FragPref is a per-timestamp fragment preference: any fragment at
// Timestamp except Exclude ones is acceptable.
type FragPref struct {
	Timestamp timestamp.Timestamp
	Exclude   []int
}

type fragPrefJSON struct {
	Timestamp *string `json:"timestamp"`
	Exclude   *[]int  `json:"exclude"`
}

// ParseFragPrefs decodes fragment preferences from their JSON wire form:
//
//	[{"timestamp": "0000000007.00000", "exclude": [1, 3]}, ...]
//
// Both keys are required in every entry, unknown keys are rejected.
func ParseFragPrefs(data []byte) ([]FragPref, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var raw []fragPrefJSON
	if err := dec.Decode(&raw); err != nil {
		return nil, malformed("invalid frag_prefs %s: %v", data, err)
	}
	if raw == nil {
		return nil, malformed("invalid frag_prefs %s: not a list", data)
	}

	res := make([]FragPref, 0, len(raw))
	for i, r := range raw {
		if r.Timestamp == nil || r.Exclude == nil {
			return nil, malformed("invalid frag_prefs entry #%d: timestamp and exclude are required", i)
		}
		ts, err := timestamp.Parse(*r.Timestamp)
		if err != nil {
			return nil, malformed("invalid frag_prefs entry #%d: %v", i, err)
		}
		for _, idx := range *r.Exclude {
			if idx < 0 {
				return nil, malformed("invalid frag_prefs entry #%d: negative fragment index %d", i, idx)
			}
		}
		res = append(res, FragPref{Timestamp: ts, Exclude: *r.Exclude})
	}

	return res, nil
}

// ResolvePrm groups optional parameters of on-disk state resolution.
type ResolvePrm struct {
	fragIndex    int
	hasFragIndex bool

	prefs    []FragPref
	hasPrefs bool
}

// SetFragIndex requests a particular fragment index.
func (p *ResolvePrm) SetFragIndex(idx int) {
	p.fragIndex, p.hasFragIndex = idx, true
}

// SetFragPrefs sets fragment preferences. Any preferences, including an
// empty list, relax the durability requirement.
func (p *ResolvePrm) SetFragPrefs(prefs []FragPref) {
	p.prefs, p.hasPrefs = prefs, true
}

// FragIndex returns requested fragment index.
func (p ResolvePrm) FragIndex() (int, bool) {
	return p.fragIndex, p.hasFragIndex
}
