package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// LoadJSON reads a region spec from a JSON-with-comments (JSONC) file,
// standardizing it to plain JSON before unmarshaling — the same two-step
// hujson.Standardize + json.Unmarshal pattern calvinalkan-agent-task's
// config.go uses for its own JSONC config file. This is the loader that
// matches the distilled spec's "JSON-style config loader" collaborator.
func LoadJSON(path string) (RegionSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RegionSpec{}, err
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return RegionSpec{}, fmt.Errorf("config: invalid JSONC in %s: %w", path, err)
	}

	var spec RegionSpec
	if err := json.Unmarshal(standardized, &spec); err != nil {
		return RegionSpec{}, fmt.Errorf("config: invalid JSON in %s: %w", path, err)
	}
	return spec, nil
}
