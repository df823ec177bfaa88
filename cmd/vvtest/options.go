package main

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/sandialabs/vvtest/pkg/batch"
	"github.com/sandialabs/vvtest/pkg/filter"
	"github.com/sandialabs/vvtest/pkg/platform"
	"github.com/sandialabs/vvtest/pkg/runner"
	"github.com/sandialabs/vvtest/pkg/scheduler"
	"github.com/sandialabs/vvtest/pkg/specsource"
	"github.com/sandialabs/vvtest/pkg/statusserver"
	"github.com/sandialabs/vvtest/pkg/testcase"
	"github.com/sandialabs/vvtest/pkg/testlist"
	"github.com/sandialabs/vvtest/pkg/testspec"
)

// Options is the runtime configuration ToOptions derives from Flags,
// ready to drive a run without further flag-parsing concerns.
type Options struct {
	Manifest     string
	TestingDir   string
	TestListPath string

	NumProcs, MaxProcs, Devices, MaxDevices *int
	NodeSize                                int

	PlatformName string
	PlatOpts     map[string]string
	PlatConfig   string

	FilterCfg filter.Config

	Batch        bool
	BatchMaxNP   int
	BatchQueue   string
	BatchAccount string

	StatusAddr string
}

// ToOptions resolves Flags (consulting which were explicitly set, via
// changed) into Options.
func (f *Flags) ToOptions(changed func(name string) bool) (*Options, error) {
	o := &Options{
		Manifest:     f.Manifest,
		TestingDir:   f.TestingDir,
		TestListPath: f.TestList,
		NodeSize:     f.NodeSize,
		PlatformName: f.Platform,
		PlatOpts:     parsePlatOpts(f.PlatOpt),
		PlatConfig:   f.PlatConfig,
		Batch:        f.Batch,
		BatchMaxNP:   f.BatchMaxNP,
		BatchQueue:   f.BatchQueue,
		BatchAccount: f.BatchAccount,
		StatusAddr:   f.StatusAddr,
		FilterCfg: filter.Config{
			ParameterExpr: f.ParameterExpr,
			Platform:      f.Platform,
			OnOptions:     f.OnOptions,
			OffOptions:    f.OffOptions,
			MaxProcessors: f.MaxProcessors,
			RuntimeWords:  sets.NewString(),
			RuntimeSum:    f.RuntimeSum,
			SubdirScope:   f.SubdirScope,
			AnalyzeOnly:   f.AnalyzeOnly,
			Baseline:      f.Baseline,
		},
	}

	if !changed("runtime-sum") {
		o.FilterCfg.RuntimeSum = math.Inf(1)
	}
	if changed("num-procs") {
		v := f.NumProcs
		o.NumProcs = &v
	}
	if changed("max-procs") {
		v := f.MaxProcs
		o.MaxProcs = &v
	}
	if changed("devices") {
		v := f.Devices
		o.Devices = &v
	}
	if changed("max-devices") {
		v := f.MaxDevices
		o.MaxDevices = &v
	}

	return o, nil
}

// Run executes the full scan -> filter -> groups -> dependencies ->
// restart-filter -> backlog -> (pool loop | batch pack) -> reconcile
// pipeline (spec.md §2's flow).
func (o *Options) Run() error {
	specs, err := specsource.Load(o.Manifest)
	if err != nil {
		return err
	}

	list := testlist.New()
	var cases []*testcase.Case
	for _, spec := range specs {
		tc := testcase.New(spec)
		list.Add(tc)
		cases = append(cases, tc)
	}
	logrus.WithField("count", len(cases)).Info("vvtest: loaded manifest")

	rtdb := platform.NewRuntimeDB()
	estimate := func(spec *testspec.Spec) float64 {
		return rtdb.Estimate(spec.ExecuteDir, 0.5, 60)
	}

	gm := filter.PermanentFilter(cases, o.FilterCfg, estimate)
	connectDependencies(cases, list, gm)

	if o.FilterCfg.SubdirScope != "" || o.FilterCfg.AnalyzeOnly || o.FilterCfg.Baseline {
		gm = filter.RestartFilter(cases, o.FilterCfg, estimate)
		connectDependencies(cases, list, gm)
	}

	plat, err := o.buildPlatform()
	if err != nil {
		return err
	}

	var statusSrv *statusserver.Server
	if o.StatusAddr != "" {
		statusSrv = statusserver.NewServer(snapshotProvider(list))
		go func() {
			if err := statusSrv.ListenAndServe(o.StatusAddr); err != nil {
				logrus.WithError(err).Warn("vvtest: status server stopped")
			}
		}()
	}

	active := activeCases(cases)

	if o.Batch {
		if err := o.runBatch(active, plat); err != nil {
			return err
		}
	} else if err := o.runLocal(active, plat, rtdb); err != nil {
		return err
	}

	return o.writeTestList(cases)
}

func connectDependencies(cases []*testcase.Case, reg testcase.Registry, gm *testcase.GroupMap) {
	seen := map[*testcase.Case]bool{}
	for _, tc := range cases {
		if analyze := gm.Analyze(tc); analyze != nil && !seen[analyze] {
			seen[analyze] = true
			testcase.ConnectAnalyzeDependencies(analyze, gm)
		}
	}
	for _, tc := range cases {
		testcase.ConnectDeclaredDependencies(tc, reg)
	}
}

func activeCases(cases []*testcase.Case) []*testcase.Case {
	var out []*testcase.Case
	for _, tc := range cases {
		if !tc.Status.IsSkipped() {
			out = append(out, tc)
		}
	}
	return out
}

func (o *Options) buildPlatform() (*platform.Platform, error) {
	plat, err := platform.New(o.PlatformName, o.PlatOpts)
	if err != nil {
		return nil, err
	}

	if o.PlatConfig != "" {
		cfg, err := platform.LoadConfig(o.PlatConfig)
		if err != nil {
			return nil, err
		}
		plat.ApplyConfig(cfg)
	}
	for k, v := range o.PlatOpts {
		plat.SetAttr(k, v)
	}
	if o.TestingDir != "" {
		plat.SetAttr("testingdir", o.TestingDir)
	}

	plat.InitProcs(o.NumProcs, o.MaxProcs, o.Devices, o.MaxDevices)
	return plat, nil
}

func (o *Options) runLocal(active []*testcase.Case, plat *platform.Platform, rtdb *platform.RuntimeDB) error {
	backlog := scheduler.New(o.NodeSize, func(tc *testcase.Case) float64 {
		return rtdb.Estimate(tc.ID(), 0.5, 60)
	})
	for _, tc := range active {
		backlog.Insert(tc)
	}
	backlog.Sort(scheduler.SortByRuntime)

	launch := &runner.Local{
		LogDir: testingDirOrDefault(plat),
		Command: func(tc *testcase.Case) []string {
			return []string{filepath.Join(tc.Spec.SourceRoot, tc.Spec.RelPath)}
		},
	}

	execList := scheduler.NewExecList(backlog, plat.ProcPool(), plat.DevicePool(), launch, o.NodeSize)
	for execList.HasWork() {
		for execList.Tick() {
		}
		execList.CheckStateChange()
		if execList.HasWork() {
			time.Sleep(200 * time.Millisecond)
		}
	}
	return nil
}

func (o *Options) runBatch(active []*testcase.Case, plat *platform.Platform) error {
	availNP, availND := plat.MaxSize()
	maxNP := o.BatchMaxNP
	if maxNP <= 0 {
		maxNP = availNP
	}

	packer := &batch.Packer{NodeSize: o.NodeSize, MaxNP: maxNP, MaxND: availND, Walltime: 3600}
	jobs := packer.Pack(active)

	ppn, dpn := availNP, availND
	var extraFlags []string
	if b := plat.Batch(); b != nil {
		ppn = b.PPN
	}
	slurm := batch.NewSLURM(ppn, dpn, extraFlags, plat.Attr("QoS", ""))

	submitDir := filepath.Join(testingDirOrDefault(plat), "batch")
	sub := batch.NewSubmitter(packer, slurm, batch.ScriptOptions{
		Queue:      o.BatchQueue,
		Account:    o.BatchAccount,
		HarnessCmd: []string{"vvtest"},
	})

	for i, job := range jobs {
		jobDir := filepath.Join(submitDir, fmt.Sprintf("job%d", i))
		if err := sub.SubmitJob(job, slurm, jobDir); err != nil {
			logrus.WithError(err).WithField("job", i).Error("vvtest: batch submission failed")
			continue
		}
	}

	for {
		if err := sub.PollJobs(jobs); err != nil {
			return err
		}
		allDone := true
		for _, j := range jobs {
			if !j.Done() {
				allDone = false
				break
			}
		}
		if allDone {
			break
		}
		time.Sleep(30 * time.Second)
	}

	for _, job := range jobs {
		if job.ResultFile == "" {
			continue
		}
		if err := sub.Reconcile(job); err != nil {
			logrus.WithError(err).WithField("job", job.ID).Warn("vvtest: reconciliation failed")
		}
	}
	return nil
}

func (o *Options) writeTestList(cases []*testcase.Case) error {
	f, err := os.Create(o.TestListPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return testlist.WriteTestList(f, cases, time.Now().Format(testlist.ResultsSuffixLayout))
}

func testingDirOrDefault(plat *platform.Platform) string {
	if d := plat.TestingDirectory(); d != "" {
		return d
	}
	return "."
}

func snapshotProvider(list *testlist.List) statusserver.Provider {
	return func() statusserver.Snapshot {
		var snap statusserver.Snapshot
		for _, tc := range list.Tests() {
			snap.Total++
			switch {
			case tc.Status.Result == testspec.ResultPass:
				snap.Pass++
				snap.Done++
			case tc.Status.Result == testspec.ResultFail:
				snap.Fail++
				snap.Done++
			case tc.Status.Result == testspec.ResultDiff:
				snap.Diff++
				snap.Done++
			case tc.Status.Result == testspec.ResultTimeout:
				snap.Timeout++
				snap.Done++
			case tc.Status.IsSkipped():
				snap.Notrun++
			case !tc.Status.StartTime.IsZero():
				snap.Running++
			}
		}
		return snap
	}
}
