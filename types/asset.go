package types

import (
	"sort"
	"time"
)

// AssetKey names the slot under which versions accumulate, e.g. "scene_start_frame".
type AssetKey string

// Metadata is free-form data attached to a version (scores, provenance, ...).
type Metadata map[string]any

// AssetVersion is immutable once created.
type AssetVersion struct {
	Version   int       `json:"version"`
	Type      string    `json:"type"`
	Data      string    `json:"data"`
	Metadata  Metadata  `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// AssetHistory is the append-only version list of one (entity, AssetKey) pair.
// Head is the last issued version number; Best is 0 when nothing is selected.
type AssetHistory struct {
	Head     int            `json:"head"`
	Best     int            `json:"best"`
	Versions []AssetVersion `json:"versions"`
}

// NewAssetVersion is a version waiting for its number.
type NewAssetVersion struct {
	Type     string
	Data     string
	Metadata Metadata
}

// Find returns the version with the given number or nil.
func (h *AssetHistory) Find(version int) *AssetVersion {
	if h == nil || version <= 0 {
		return nil
	}
	i := sort.Search(len(h.Versions), func(i int) bool { return h.Versions[i].Version >= version })
	if i < len(h.Versions) && h.Versions[i].Version == version {
		return &h.Versions[i]
	}
	return nil
}

// NextVersion is the number the next appended version will get.
func (h *AssetHistory) NextVersion() int {
	if h == nil {
		return 1
	}
	return h.Head + 1
}

// Append numbers v as head+1 and adds it. The new version becomes best when
// nothing is selected yet or setBest is requested.
func (h *AssetHistory) Append(v NewAssetVersion, setBest bool, now time.Time) AssetVersion {
	created := AssetVersion{
		Version:   h.Head + 1,
		Type:      v.Type,
		Data:      v.Data,
		Metadata:  v.Metadata,
		CreatedAt: now,
	}
	h.Versions = append(h.Versions, created)
	h.Head = created.Version
	if h.Best == 0 || setBest {
		h.Best = created.Version
	}
	return created
}

// BestVersion returns the selected version or nil when unset or missing.
func (h *AssetHistory) BestVersion() *AssetVersion {
	if h == nil || h.Best == 0 {
		return nil
	}
	return h.Find(h.Best)
}

// SetBest selects version; 0 clears the selection. It reports false when the
// version does not exist.
func (h *AssetHistory) SetBest(version int) bool {
	if version == 0 {
		h.Best = 0
		return true
	}
	if h.Find(version) == nil {
		return false
	}
	h.Best = version
	return true
}

// AssetRegistry is embedded in the owning entity's row.
type AssetRegistry map[AssetKey]*AssetHistory

// History returns the history for key, creating an empty one when absent.
func (r AssetRegistry) History(key AssetKey) *AssetHistory {
	if h, ok := r[key]; ok && h != nil {
		return h
	}
	h := &AssetHistory{Versions: []AssetVersion{}}
	r[key] = h
	return h
}
