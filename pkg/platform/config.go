package platform

import (
	"fmt"
	"io/ioutil"

	"gopkg.in/yaml.v2"
)

// Config is the on-disk platform description consulted once at startup
// (spec.md §9's enumerated platform attributes), loaded from YAML.
// Unrecognized keys land in Misc rather than causing a load failure,
// since plugin hooks are free to consult arbitrary keys.
type Config struct {
	Queue      string            `yaml:"queue"`
	Account    string            `yaml:"account"`
	Walltime   string            `yaml:"walltime"`
	QoS        string            `yaml:"QoS"`
	PPN        int               `yaml:"ppn"`
	DPN        int               `yaml:"dpn"`
	MPIFile    string            `yaml:"mpifile"`
	MPIOpts    string            `yaml:"mpiopts"`
	MaxProcs   int               `yaml:"maxprocs"`
	MaxDevices int               `yaml:"maxdevices"`
	TestingDir string            `yaml:"testingdir"`
	MaxSubs    int               `yaml:"maxsubs"`
	ExtraFlags []string          `yaml:"extra_flags"`
	MinEngine  string            `yaml:"min_engine_version"`
	Misc       map[string]string `yaml:"misc"`
}

// LoadConfig reads and parses a PlatformConfig YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("platform: read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("platform: parse config %s: %w", path, err)
	}
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err == nil {
		known := map[string]bool{"queue": true, "account": true, "walltime": true, "QoS": true, "ppn": true, "dpn": true, "mpifile": true, "mpiopts": true, "maxprocs": true, "maxdevices": true, "testingdir": true, "maxsubs": true, "extra_flags": true, "min_engine_version": true, "misc": true}
		for k, v := range raw {
			if known[k] {
				continue
			}
			if cfg.Misc == nil {
				cfg.Misc = map[string]string{}
			}
			cfg.Misc[k] = fmt.Sprint(v)
		}
	}
	return &cfg, nil
}

// Attrs copies the config's recognized fields into a Platform's
// attribute map, matching set_platform_options/initProcs' behavior of
// reading plugin-relevant values as a flat string-keyed dict.
func (c *Config) Attrs() map[string]string {
	attrs := map[string]string{}
	set := func(k, v string) {
		if v != "" {
			attrs[k] = v
		}
	}
	set("queue", c.Queue)
	set("account", c.Account)
	set("walltime", c.Walltime)
	set("QoS", c.QoS)
	set("mpifile", c.MPIFile)
	set("mpiopts", c.MPIOpts)
	set("testingdir", c.TestingDir)
	if c.PPN > 0 {
		attrs["ppn"] = fmt.Sprintf("%d", c.PPN)
	}
	if c.DPN > 0 {
		attrs["dpn"] = fmt.Sprintf("%d", c.DPN)
	}
	if c.MaxProcs > 0 {
		attrs["maxprocs"] = fmt.Sprintf("%d", c.MaxProcs)
	}
	if c.MaxDevices > 0 {
		attrs["maxdevices"] = fmt.Sprintf("%d", c.MaxDevices)
	}
	if c.MaxSubs > 0 {
		attrs["maxsubs"] = fmt.Sprintf("%d", c.MaxSubs)
	}
	for k, v := range c.Misc {
		attrs[k] = v
	}
	return attrs
}
