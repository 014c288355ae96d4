package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Options are the knobs the core recognizes. A .cairo-parser.json found by
// searching upward from the first input root supplies defaults; explicit CLI
// flags win over it.
type Options struct {
	StubMissing  bool   `json:"stubMissing"`
	ExcludeTests bool   `json:"excludeTests"`
	Analyze      bool   `json:"analyze"`
	MaxPaths     int    `json:"maxPaths"`
	Cache        bool   `json:"cache"`
	Format       string `json:"format"`
}

func Default() Options {
	return Options{
		StubMissing:  true,
		ExcludeTests: true,
		Analyze:      false,
		MaxPaths:     100,
		Cache:        true,
		Format:       "summary",
	}
}

// Load searches upward from startDir for .cairo-parser.json and merges it
// over the defaults. Returns the options, the config path if one was found,
// and any read error for an existing file.
func Load(startDir string) (Options, string, error) {
	opts := Default()
	dir, err := filepath.Abs(startDir)
	if err != nil {
		dir = startDir
	}
	for {
		candidate := filepath.Join(dir, ".cairo-parser.json")
		if _, err := os.Stat(candidate); err == nil {
			b, err := os.ReadFile(candidate)
			if err != nil {
				return opts, candidate, err
			}
			if err := json.Unmarshal(b, &opts); err != nil {
				return opts, candidate, err
			}
			return opts, candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return opts, "", nil
}
