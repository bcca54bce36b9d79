package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"hudbridge.ai/internal/drawable"
	"hudbridge.ai/internal/surface"
)

type Config struct {
	Addr               string `yaml:"addr"`
	DataDir            string `yaml:"data_dir"`
	TerminalID         string `yaml:"terminal_id"`
	SyncRateHz         int    `yaml:"sync_rate_hz"`
	SnapshotEveryTicks int    `yaml:"snapshot_every_ticks"`
	SnapshotKeep       int    `yaml:"snapshot_keep"`
	MaxQueue           int    `yaml:"max_queue"`
	MaxSurfaces        int    `yaml:"max_surfaces"`

	// Kinds is the tag table. Tags are part of stored state and the wire
	// protocol; changing one breaks every existing snapshot and client.
	Kinds map[string]int `yaml:"kinds"`

	Render RenderConfig `yaml:"render"`
}

type RenderConfig struct {
	CellWidth  int              `yaml:"cell_width"`
	CellHeight int              `yaml:"cell_height"`
	Background int32            `yaml:"background"`
	Fluids     map[string]int32 `yaml:"fluids"`
	Items      map[int32]string `yaml:"items"`
}

func Defaults() Config {
	tags := map[string]int{}
	for k, t := range drawable.DefaultTags() {
		tags[k.String()] = int(t)
	}
	return Config{
		Addr:               ":8080",
		DataDir:            "./data",
		SyncRateHz:         20,
		SnapshotEveryTicks: 1200,
		SnapshotKeep:       10,
		MaxQueue:           32,
		MaxSurfaces:        surface.DefaultMaxSurfaces,
		Kinds:              tags,
		Render: RenderConfig{
			CellWidth:  6,
			CellHeight: 12,
			Background: 0x000000,
			Fluids: map[string]int32{
				"water": 0x3F76E4,
				"lava":  0xFF6A00,
			},
			Items: map[int32]string{
				1:   "▪",
				264: "◆",
				276: "†",
			},
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.SyncRateHz <= 0 || c.SyncRateHz > 200 {
		return fmt.Errorf("sync_rate_hz must be in [1, 200]")
	}
	if c.SnapshotEveryTicks < 0 {
		return fmt.Errorf("snapshot_every_ticks must be >= 0")
	}
	if c.SnapshotKeep < 0 {
		return fmt.Errorf("snapshot_keep must be >= 0")
	}
	if c.MaxQueue <= 0 {
		return fmt.Errorf("max_queue must be > 0")
	}
	if c.MaxSurfaces <= 0 {
		return fmt.Errorf("max_surfaces must be > 0")
	}
	if c.Render.CellWidth <= 0 || c.Render.CellHeight <= 0 {
		return fmt.Errorf("render cell size must be > 0")
	}
	if strings.TrimSpace(c.TerminalID) != "" {
		if _, err := surface.ParseTerminalID(c.TerminalID); err != nil {
			return err
		}
	}
	_, err := c.TagTable()
	return err
}

// TagTable parses the kinds section. Duplicate tags are left for the registry
// to reject so the failure names both kinds.
func (c Config) TagTable() (map[drawable.Kind]drawable.Tag, error) {
	out := make(map[drawable.Kind]drawable.Tag, len(c.Kinds))
	names := make([]string, 0, len(c.Kinds))
	for n := range c.Kinds {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		k, ok := drawable.ParseKind(n)
		if !ok {
			return nil, fmt.Errorf("kinds: unknown kind %q", n)
		}
		if _, dup := out[k]; dup {
			return nil, fmt.Errorf("kinds: %s listed twice", k)
		}
		out[k] = drawable.Tag(c.Kinds[n])
	}
	for _, k := range drawable.Kinds {
		if _, ok := out[k]; !ok {
			return nil, fmt.Errorf("kinds: missing tag for %s", k)
		}
	}
	return out, nil
}
