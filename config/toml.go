// Package config loads declarative "region + topics" deployment files.
// Two formats are supported, each grounded in the example pack: a TOML
// loader matching the teacher feeder's own config.Load exactly
// (feeder/config/config.go), and a JSON-with-comments loader matching the
// distilled spec's literal phrase "JSON-style config loader" more
// precisely (§6, external collaborators).
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/AlephTX/usrl/shm"
)

// TopicSpec is one topic's declarative definition in a deployment file.
type TopicSpec struct {
	Name        string `toml:"name" json:"name"`
	Type        string `toml:"type" json:"type"` // "swmr" or "mwmr"
	SlotCount   uint32 `toml:"slot_count" json:"slot_count"`
	PayloadSize uint32 `toml:"payload_size" json:"payload_size"`
}

// RegionSpec describes a region and the topics it should be created with.
type RegionSpec struct {
	Name       string      `toml:"name" json:"name"`
	Size       uint64      `toml:"size" json:"size"`
	TopicSpecs []TopicSpec `toml:"topics" json:"topics"`
}

// Topics converts the declarative specs into shm.TopicConfig, resolving
// the string ring-type tag.
func (r RegionSpec) Topics() ([]shm.TopicConfig, error) {
	out := make([]shm.TopicConfig, 0, len(r.TopicSpecs))
	for _, t := range r.TopicSpecs {
		rt, err := parseRingType(t.Type)
		if err != nil {
			return nil, fmt.Errorf("config: topic %q: %w", t.Name, err)
		}
		out = append(out, shm.TopicConfig{
			Name:        t.Name,
			Type:        rt,
			SlotCount:   t.SlotCount,
			PayloadSize: t.PayloadSize,
		})
	}
	return out, nil
}

func parseRingType(s string) (shm.RingType, error) {
	switch s {
	case "swmr", "SWMR", "":
		return shm.SWMR, nil
	case "mwmr", "MWMR":
		return shm.MWMR, nil
	default:
		return 0, fmt.Errorf("unknown ring type %q (want swmr or mwmr)", s)
	}
}

// LoadTOML reads a region spec from a TOML file, the same shape as the
// teacher feeder's exchange config (feeder/config/config.go: os.ReadFile +
// toml.Unmarshal, no defaults merging).
func LoadTOML(path string) (RegionSpec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return RegionSpec{}, err
	}
	var spec RegionSpec
	if err := toml.Unmarshal(b, &spec); err != nil {
		return RegionSpec{}, err
	}
	return spec, nil
}
