package diskfile

import (
	"hash"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/nspcc-dev/neofs-diskfile/pkg/core/storagepolicy"
	"github.com/nspcc-dev/neofs-diskfile/pkg/core/timestamp"
)

// Backend implements policy specific parts of the on-disk layout: file
// name codec, file set selection, verification and suffix hashing. The set
// of implementations is closed, use NewBackend.
type Backend interface {
	// PolicyType returns storage policy type the backend serves.
	PolicyType() storagepolicy.Type
	// ParseFilename decodes on-disk file name.
	ParseFilename(name string) (FileInfo, error)
	// MakeFilename encodes file info into on-disk file name. Filename field
	// is ignored.
	MakeFilename(fi FileInfo) (string, error)

	processFiles(g fileGroups, st *State, prm ResolvePrm)
	verify(st *State, prm ResolvePrm) bool
	hashState(h *suffixHasher, st *State, present func(FileInfo) bool)
}

// NewBackend returns Backend of the policy type.
func NewBackend(p storagepolicy.Policy) Backend {
	if p.Type == storagepolicy.TypeErasureCoding {
		return ecBackend{width: p.ECDataFrags + p.ECParityFrags}
	}
	return replicatedBackend{}
}

type replicatedBackend struct{}

func (replicatedBackend) PolicyType() storagepolicy.Type { return storagepolicy.TypeReplication }

func (replicatedBackend) ParseFilename(name string) (FileInfo, error) {
	stem, ext := splitExt(name)
	switch ext {
	case ExtData, ExtMeta, ExtTombstone:
		return parseCommon(name, stem, ext)
	default:
		if _, err := timestamp.Parse(stem); err != nil {
			return FileInfo{}, malformed("invalid timestamp value in filename '%s'", name)
		}
		return FileInfo{}, malformed("invalid file extension in filename '%s'", name)
	}
}

func (replicatedBackend) MakeFilename(fi FileInfo) (string, error) {
	switch fi.Ext {
	case ExtData, ExtMeta, ExtTombstone:
		return makeCommon(fi), nil
	default:
		return "", malformed("invalid file extension %q", fi.Ext)
	}
}

func (replicatedBackend) processFiles(g fileGroups, st *State, _ ResolvePrm) {
	if data := g[ExtData]; len(data) > 0 {
		newest := data[0].Timestamp
		for ext, list := range g {
			var keep, older []FileInfo
			if ext == ExtData {
				keep, older = splitNotOlder(list, newest)
			} else {
				keep, older = splitNewer(list, newest)
			}
			g[ext] = keep
			st.Obsolete = append(st.Obsolete, older...)
		}
		chosen := g[ExtData][0]
		st.Data = &chosen
	}

	if len(g[ExtMeta]) > 0 && len(g[ExtData]) == 0 {
		st.PossibleReclaim = append(st.PossibleReclaim, g[ExtMeta]...)
	}
}

func (replicatedBackend) verify(st *State, _ ResolvePrm) bool {
	return verifyCommon(st)
}

func (replicatedBackend) hashState(h *suffixHasher, st *State, present func(FileInfo) bool) {
	w := h.get(NoFragIndex)
	hashCommonHead(w, st, present)
	if st.Data != nil && present(*st.Data) {
		w.Write([]byte(st.Data.Timestamp.Internal() + string(ExtData)))
	}
	hashCType(w, st, present)
}

type ecBackend struct {
	width int
}

func (ecBackend) PolicyType() storagepolicy.Type { return storagepolicy.TypeErasureCoding }

func (b ecBackend) ParseFilename(name string) (FileInfo, error) {
	stem, ext := splitExt(name)
	switch ext {
	case ExtMeta, ExtTombstone, ExtDurable:
		return parseCommon(name, stem, ext)
	case ExtData:
		tsPart, fragPart, found := strings.Cut(stem, "#")
		ts, err := timestamp.Parse(tsPart)
		if err != nil {
			return FileInfo{}, malformed("invalid timestamp value in filename '%s'", name)
		}
		if !found {
			return FileInfo{}, malformed("bad fragment index: missing in filename '%s'", name)
		}
		idx, err := b.validateFragIndex(fragPart)
		if err != nil {
			return FileInfo{}, err
		}
		return FileInfo{Filename: name, Timestamp: ts, Ext: ExtData, FragIndex: idx}, nil
	default:
		if _, err := timestamp.Parse(stem); err != nil {
			return FileInfo{}, malformed("invalid timestamp value in filename '%s'", name)
		}
		return FileInfo{}, malformed("invalid file extension in filename '%s'", name)
	}
}

func (b ecBackend) validateFragIndex(s string) (int, error) {
	idx, err := ParseFragIndex(s)
	if err != nil {
		return NoFragIndex, err
	}
	if b.width > 0 && idx >= b.width {
		return NoFragIndex, malformed("fragment index %d exceeds policy width %d", idx, b.width)
	}
	return idx, nil
}

func (b ecBackend) MakeFilename(fi FileInfo) (string, error) {
	switch fi.Ext {
	case ExtMeta, ExtTombstone, ExtDurable:
		return makeCommon(fi), nil
	case ExtData:
		if fi.FragIndex == NoFragIndex {
			return "", malformed("bad fragment index: missing")
		}
		if _, err := b.validateFragIndex(strconv.Itoa(fi.FragIndex)); err != nil {
			return "", err
		}
		return fi.Timestamp.Internal() + "#" + strconv.Itoa(fi.FragIndex) + string(ExtData), nil
	default:
		return "", malformed("invalid file extension %q", fi.Ext)
	}
}

func (ecBackend) processFiles(g fileGroups, st *State, prm ResolvePrm) {
	var durable *FileInfo
	if ds := g[ExtDurable]; len(ds) > 0 {
		d := ds[0]
		durable = &d
		for ext, list := range g {
			keep, older := splitNotOlder(list, d.Timestamp)
			g[ext] = keep
			st.Obsolete = append(st.Obsolete, older...)
		}
	}

	fragSets := make(map[timestamp.Timestamp][]FileInfo)
	for _, fi := range g[ExtData] {
		fragSets[fi.Timestamp] = append(fragSets[fi.Timestamp], fi)
	}
	for _, set := range fragSets {
		slices.SortFunc(set, func(a, b FileInfo) int { return a.FragIndex - b.FragIndex })
	}

	var durableSet []FileInfo
	if durable != nil {
		durableSet = fragSets[durable.Timestamp]
	}

	fragIndex, hasIndex := prm.fragIndex, prm.hasFragIndex
	var chosenSet []FileInfo
	if prm.hasPrefs {
		candidates := maps.Clone(fragSets)
		found := false
		for _, pref := range prm.prefs {
			set, ok := candidates[pref.Timestamp]
			if !ok {
				continue
			}
			best := NoFragIndex
			for _, fi := range set {
				if fi.FragIndex > best && !slices.Contains(pref.Exclude, fi.FragIndex) {
					best = fi.FragIndex
				}
			}
			if best != NoFragIndex {
				chosenSet = set
				fragIndex, hasIndex = best, true
				found = true
				break
			}
			delete(candidates, pref.Timestamp)
		}
		if !found {
			var newest *timestamp.Timestamp
			for ts := range candidates {
				if newest == nil || ts.After(*newest) {
					t := ts
					newest = &t
				}
			}
			if newest != nil {
				chosenSet = candidates[*newest]
			}
		}
	} else {
		chosenSet = durableSet
	}

	var chosen *FileInfo
	if len(chosenSet) > 0 {
		if hasIndex {
			for i := range chosenSet {
				if chosenSet[i].FragIndex == fragIndex {
					fi := chosenSet[i]
					chosen = &fi
					break
				}
			}
		} else {
			fi := chosenSet[len(chosenSet)-1]
			chosen = &fi
		}
	}

	isDurable := func(set []FileInfo) bool {
		return durable != nil && len(set) > 0 && set[0].Timestamp == durable.Timestamp
	}

	if chosen != nil {
		st.Data = chosen
		st.DurableFragSet = durableSet
		st.ChosenFragSet = chosenSet

		keep, older := splitNewer(g[ExtMeta], chosen.Timestamp)
		g[ExtMeta] = keep
		if isDurable(chosenSet) {
			st.Obsolete = append(st.Obsolete, older...)
		}
	}
	st.FragSets = fragSets

	if len(g[ExtDurable]) > 0 && len(durableSet) == 0 {
		st.Obsolete = append(st.Obsolete, g[ExtDurable]...)
		delete(g, ExtDurable)
	}

	for ts, set := range fragSets {
		if durable != nil && ts == durable.Timestamp {
			continue
		}
		if len(chosenSet) > 0 && ts == chosenSet[0].Timestamp {
			continue
		}
		st.PossibleReclaim = append(st.PossibleReclaim, set...)
	}

	if len(g[ExtMeta]) > 0 && len(durableSet) == 0 {
		st.PossibleReclaim = append(st.PossibleReclaim, g[ExtMeta]...)
	}
}

func (ecBackend) verify(st *State, prm ResolvePrm) bool {
	if !verifyCommon(st) {
		return false
	}
	if st.DurableFragSet != nil && len(st.DurableFragSet) == 0 {
		return false
	}
	haveData := st.Data != nil
	haveDurable := st.DurableFragSet != nil || (haveData && prm.hasPrefs)
	return haveData == haveDurable
}

func (ecBackend) hashState(h *suffixHasher, st *State, present func(FileInfo) bool) {
	w := h.get(NoFragIndex)
	hashCommonHead(w, st, present)

	timestamps := make([]timestamp.Timestamp, 0, len(st.FragSets))
	for ts := range st.FragSets {
		timestamps = append(timestamps, ts)
	}
	slices.SortFunc(timestamps, timestamp.Timestamp.Compare)
	for _, ts := range timestamps {
		for _, fi := range st.FragSets[ts] {
			if present(fi) {
				h.get(fi.FragIndex).Write([]byte(fi.Timestamp.Internal()))
			}
		}
	}

	if len(st.DurableFragSet) > 0 && present(st.DurableFragSet[0]) {
		w.Write([]byte(st.DurableFragSet[0].Timestamp.Internal() + string(ExtDurable)))
	}
	hashCType(w, st, present)
}

// verifyCommon checks that a tombstone excludes data and metadata and that
// metadata comes with data only.
func verifyCommon(st *State) bool {
	switch {
	case st.Data == nil && st.Meta == nil && st.Tombstone == nil:
		return st.CType == nil
	case st.Tombstone != nil:
		return st.Data == nil && st.Meta == nil
	default:
		return st.Data != nil
	}
}

func hashCommonHead(w hash.Hash, st *State, present func(FileInfo) bool) {
	if st.Tombstone != nil && present(*st.Tombstone) {
		w.Write([]byte(st.Tombstone.Timestamp.Internal() + string(ExtTombstone)))
	}
	if st.Meta != nil && present(*st.Meta) {
		w.Write([]byte(st.Meta.Timestamp.Internal() + string(ExtMeta)))
	}
}

func hashCType(w hash.Hash, st *State, present func(FileInfo) bool) {
	if st.CType != nil && present(*st.CType) {
		w.Write([]byte(st.CType.ctype().Internal() + "_ctype"))
	}
}
