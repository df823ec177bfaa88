// Package platform implements the Platform component: processor/device
// ResourcePool ownership, environment/attribute maps, the optional
// batch-system descriptor, and the three plugin hook tables
// (spec.md §4 "Platform", §9 "Module import for plugins").
package platform

import (
	"fmt"
	"os"
	"runtime"

	"github.com/sandialabs/vvtest/pkg/resource"
)

// IDPlatformHooks models the opaque "idplatform" plugin module:
// name/compiler identification callbacks consulted before a platform
// name is otherwise known.
type IDPlatformHooks struct {
	Platform func(opts map[string]string) (name string, ok bool)
	Compiler func(platform string, opts map[string]string) (name string, ok bool)
}

// PlatformPluginHooks models the opaque "platform_plugin" module: a
// single Initialize hook that may mutate the Platform's attrs/env and
// call SetBatchSystem.
type PlatformPluginHooks struct {
	Initialize func(p *Platform)
}

// UserPluginHooks models the opaque "user_plugin" module:
// ValidateTest returns a non-empty skip reason to veto a test.
type UserPluginHooks struct {
	ValidateTest func(attrs map[string]string) (skipReason string, ok bool)
}

// BatchSpec records a setBatchSystem call: queue type name, processors
// per node, and free-form kwargs handed to the batch_interface binding.
type BatchSpec struct {
	QueueType string
	PPN       int
	Kwargs    map[string]string
}

// Platform binds resource pools, environment/attribute maps, the
// optional batch descriptor, and the plugin hook tables.
type Platform struct {
	Name     string
	Compiler string
	Options  map[string]string

	procPool   *resource.Pool
	devicePool *resource.Pool

	pluginMaxProcs *int

	env   map[string]string
	attrs map[string]string

	batch *BatchSpec

	IDPlatform     IDPlatformHooks
	PlatformPlugin PlatformPluginHooks
	UserPlugin     UserPluginHooks
}

// New returns a Platform with a trivial 1x1 proc pool, matching the
// uninitialized-state default before InitProcs runs.
func New(name string, options map[string]string) (*Platform, error) {
	pool, err := resource.New(1, 1)
	if err != nil {
		return nil, err
	}
	return &Platform{
		Name:     name,
		Options:  options,
		procPool: pool,
		env:      map[string]string{},
		attrs:    map[string]string{},
	}, nil
}

// SetEnv sets or (if value == "") clears an environment variable exposed
// to child test processes.
func (p *Platform) SetEnv(name, value string) {
	if value == "" {
		delete(p.env, name)
		return
	}
	p.env[name] = value
}

// Environment returns the full exported environment map.
func (p *Platform) Environment() map[string]string { return p.env }

// SetAttr sets or (if value == "") clears a platform attribute.
func (p *Platform) SetAttr(name, value string) {
	if value == "" {
		delete(p.attrs, name)
		return
	}
	p.attrs[name] = value
}

// Attr returns an attribute, or def if unset.
func (p *Platform) Attr(name, def string) string {
	if v, ok := p.attrs[name]; ok {
		return v
	}
	return def
}

// ApplyConfig seeds env/attrs from a loaded Config, the way
// set_platform_options and initProcs read platopts.
func (p *Platform) ApplyConfig(cfg *Config) {
	for k, v := range cfg.Attrs() {
		p.SetAttr(k, v)
	}
}

// SetBatchSystem records the batch descriptor (spec.md §9: "may call
// setBatchSystem(type, ppn, **kwargs)").
func (p *Platform) SetBatchSystem(queueType string, ppn int, kwargs map[string]string) error {
	if ppn <= 0 {
		return fmt.Errorf("platform: ppn must be > 0, got %d", ppn)
	}
	p.batch = &BatchSpec{QueueType: queueType, PPN: ppn, Kwargs: kwargs}
	return nil
}

// Batch returns the recorded batch descriptor, or nil if none was set.
func (p *Platform) Batch() *BatchSpec { return p.batch }

// MaxSize returns (maxnp, maxnd): the upper bound of each pool.
func (p *Platform) MaxSize() (int, int) {
	maxnp := p.procPool.MaxAvailable()
	maxnd := 0
	if p.devicePool != nil {
		maxnd = p.devicePool.MaxAvailable()
	}
	return maxnp, maxnd
}

// Size returns (np, nd): the configured total of each pool.
func (p *Platform) Size() (int, int) {
	np := p.procPool.NumTotal()
	nd := 0
	if p.devicePool != nil {
		nd = p.devicePool.NumTotal()
	}
	return np, nd
}

// SizeAvailable returns (np, nd) currently free.
func (p *Platform) SizeAvailable() (int, int) {
	np := p.procPool.NumAvailable()
	nd := 0
	if p.devicePool != nil {
		nd = p.devicePool.NumAvailable()
	}
	return np, nd
}

// ProcPool and DevicePool expose the underlying pools for the scheduler
// (spec.md §5: "ResourcePool instances are the only contended resource").
func (p *Platform) ProcPool() *resource.Pool   { return p.procPool }
func (p *Platform) DevicePool() *resource.Pool { return p.devicePool }

// InitProcs determines and sets the processor/device pool sizes from
// the command-line-equivalent arguments (-n/-N/--devices/--max-devices),
// falling back to a plugin-declared maximum, then an NCPU probe
// (original_source/libvvtest/vvplatform.py::determine_processor_cores).
func (p *Platform) InitProcs(numProcs, maxProcs, numDevices, maxDevices *int) {
	if v, ok := p.attrs["maxprocs"]; ok {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			p.pluginMaxProcs = &n
		}
	}

	np, maxnp := determineProcessorCores(numProcs, maxProcs, p.pluginMaxProcs)
	pool, err := resource.New(np, maxnp)
	if err == nil {
		p.procPool = pool
	}

	var pluginMaxDev *int
	if v, ok := p.attrs["maxdevices"]; ok {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			pluginMaxDev = &n
		}
	}
	nd, maxnd := determineDeviceCount(numDevices, maxDevices, pluginMaxDev)
	if nd != nil {
		dpool, err := resource.New(*nd, *maxnd)
		if err == nil {
			p.devicePool = dpool
		}
	}
}

func determineProcessorCores(numProcs, maxProcs, pluginMax *int) (np, maxnp int) {
	if maxProcs != nil {
		maxnp = *maxProcs
	} else if pluginMax != nil {
		maxnp = *pluginMax
	} else {
		maxnp = probeNumProcessors(4)
	}
	if numProcs != nil {
		np = *numProcs
	} else {
		np = maxnp
	}
	return np, maxnp
}

func determineDeviceCount(numDevices, maxDevices, pluginMax *int) (nd, maxnd *int) {
	switch {
	case maxDevices != nil:
		maxnd = maxDevices
	case pluginMax != nil:
		maxnd = pluginMax
	}
	if numDevices != nil {
		nd = numDevices
		if maxnd == nil {
			v := *numDevices
			maxnd = &v
		}
	} else {
		nd = maxnd
	}
	return nd, maxnd
}

func probeNumProcessors(def int) int {
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return def
}

// JobInfo communicates a resource grant to a started test and is
// returned to the Platform when the job finishes.
type JobInfo struct {
	Procs       []int
	MaxProcs    int
	Devices     []int
	MaxDevices  int
	MPIOpts     string
	MachineFile string
}

// GetResources checks out np processors and (if > 0) nd devices and
// builds the JobInfo an MPI-aware launcher consults for machine-file
// generation.
func (p *Platform) GetResources(np, nd int) *JobInfo {
	procs := p.procPool.Get(np)
	info := &JobInfo{Procs: procs, MaxProcs: p.procPool.MaxAvailable()}

	var devices []int
	if p.devicePool != nil && nd > 0 {
		devices = p.devicePool.Get(nd)
		info.Devices = devices
		info.MaxDevices = p.devicePool.MaxAvailable()
	}

	mpifile := p.attrs["mpifile"]
	mpiopts := p.attrs["mpiopts"]

	switch mpifile {
	case "hostfile":
		info.MPIOpts = "--hostfile machinefile"
		slots := len(procs)
		if total := p.procPool.NumTotal(); total < slots {
			slots = total
		}
		host, _ := os.Hostname()
		info.MachineFile = fmt.Sprintf("%s slots=%d\n", host, slots)
	case "machinefile":
		info.MPIOpts = "-machinefile machinefile"
		// Fixed from the original's undefined `machine` reference
		// (spec.md §9 resolved open question): use this host's name for
		// every slot line rather than an out-of-scope variable.
		host, _ := os.Hostname()
		for i := 0; i < len(procs); i++ {
			info.MachineFile += host + "\n"
			_ = i
		}
	}

	if mpiopts != "" {
		if info.MPIOpts != "" {
			info.MPIOpts += " "
		}
		info.MPIOpts += mpiopts
	}

	return info
}

// ReturnResources gives back a JobInfo's checked-out procs/devices.
func (p *Platform) ReturnResources(info *JobInfo) {
	p.procPool.Put(info.Procs)
	if p.devicePool != nil && info.Devices != nil {
		p.devicePool.Put(info.Devices)
	}
}

// TestingDirectory resolves the sandbox root: TESTING_DIRECTORY
// environment variable, then the "testingdir" attribute, then "" (the
// caller falls back to its own default).
func (p *Platform) TestingDirectory() string {
	if v := os.Getenv("TESTING_DIRECTORY"); v != "" {
		return v
	}
	return p.attrs["testingdir"]
}
