package main

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

// Flags is the CLI surface of spec.md §6, bound with pflag the way the
// teacher's own commands split Flags/Options/Run.
type Flags struct {
	Manifest   string
	TestingDir string
	TestList   string

	NumProcs   int
	MaxProcs   int
	Devices    int
	MaxDevices int
	NodeSize   int

	Platform   string
	PlatOpt    []string
	PlatConfig string

	OnOptions  []string
	OffOptions []string

	ParameterExpr string
	MaxProcessors int
	RuntimeSum    float64

	AnalyzeOnly bool
	Baseline    bool
	SubdirScope string

	Batch        bool
	BatchMaxNP   int
	BatchQueue   string
	BatchAccount string

	StatusAddr string
}

// NewFlags returns Flags populated with their defaults.
func NewFlags() *Flags {
	return &Flags{
		TestList: "testlist",
		NodeSize: 1,
	}
}

// BindFlags registers every flag against fs.
func (f *Flags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.Manifest, "manifest", f.Manifest, "path to the YAML test-source manifest to load (stands in for the out-of-scope test-source scanner)")
	fs.StringVar(&f.TestingDir, "testing-dir", f.TestingDir, "sandbox root tests execute under; overridden by TESTING_DIRECTORY")
	fs.StringVar(&f.TestList, "testlist-file", f.TestList, "path to write the master testlist file to")

	fs.IntVarP(&f.NumProcs, "num-procs", "n", 0, "number of processors to make available (unset: use the max)")
	fs.IntVarP(&f.MaxProcs, "max-procs", "N", 0, "maximum number of processors available (unset: platform maximum, else NumCPU)")
	fs.IntVar(&f.Devices, "devices", 0, "number of devices to make available")
	fs.IntVar(&f.MaxDevices, "max-devices", 0, "maximum number of devices available")
	fs.IntVar(&f.NodeSize, "node-size", f.NodeSize, "processors per node, for np/nnode reconciliation")

	fs.StringVar(&f.Platform, "plat", f.Platform, "platform name")
	fs.StringSliceVar(&f.PlatOpt, "platopt", nil, "comma-separated key=value platform options (queue|q, account|PT, walltime, QoS, ppn|processors_per_node, dpn|devices_per_node, extra_flags)")
	fs.StringVar(&f.PlatConfig, "plat-config", f.PlatConfig, "path to a PlatformConfig YAML file")

	fs.StringArrayVarP(&f.OnOptions, "on-option", "o", nil, "keyword option to enable")
	fs.StringArrayVarP(&f.OffOptions, "off-option", "O", nil, "keyword option to disable")

	fs.StringVar(&f.ParameterExpr, "param-expr", f.ParameterExpr, "parameter filter expression")
	fs.IntVar(&f.MaxProcessors, "max-processors", 0, "skip tests declaring more processors than this (0: unlimited)")
	fs.Float64Var(&f.RuntimeSum, "runtime-sum", 0, "cumulative runtime cutoff in seconds (unset: unlimited; 0 skips every test)")

	fs.BoolVar(&f.AnalyzeOnly, "analyze-only", false, "restart filter: run only analyze tests")
	fs.BoolVar(&f.Baseline, "baseline", false, "restart filter: run only baseline tests")

	fs.BoolVar(&f.Batch, "batch", false, "submit through the batch layer instead of running a local pool loop")
	fs.IntVar(&f.BatchMaxNP, "batch-max-np", 0, "processors per batch job")
	fs.StringVar(&f.BatchQueue, "batch-queue", f.BatchQueue, "resource-manager partition/queue")
	fs.StringVar(&f.BatchAccount, "batch-account", f.BatchAccount, "resource-manager account")

	fs.StringVar(&f.StatusAddr, "status-addr", "", "if set, serve /status and /metrics on this address while running")
}

// Validate performs the checks a flag parser alone cannot: a manifest
// path is required, and at most one subdirectory-scope positional
// argument is accepted (and recorded in SubdirScope).
func (f *Flags) Validate(args []string) error {
	if f.Manifest == "" {
		return fmt.Errorf("--manifest is required")
	}
	if len(args) > 1 {
		return fmt.Errorf("at most one subdirectory-scope positional argument is accepted, got %d", len(args))
	}
	if len(args) == 1 {
		f.SubdirScope = args[0]
	}
	return nil
}

// parsePlatOpts turns --platopt's "key=value,key=value" entries into a
// map, recognizing the synonyms spec.md §6 lists.
func parsePlatOpts(raw []string) map[string]string {
	out := map[string]string{}
	for _, entry := range raw {
		kv := strings.SplitN(entry, "=", 2)
		if len(kv) != 2 {
			continue
		}
		out[canonicalPlatOptKey(kv[0])] = kv[1]
	}
	return out
}

func canonicalPlatOptKey(k string) string {
	switch k {
	case "q":
		return "queue"
	case "PT":
		return "account"
	case "processors_per_node":
		return "ppn"
	case "devices_per_node":
		return "dpn"
	default:
		return k
	}
}
