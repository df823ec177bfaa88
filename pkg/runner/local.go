// Package runner implements the two TestCase launchers: a local
// subprocess runner and a one-shot SSH remote runner (spec.md §4.6/§4.7).
package runner

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/sandialabs/vvtest/pkg/scheduler"
	"github.com/sandialabs/vvtest/pkg/testcase"
	"github.com/sandialabs/vvtest/pkg/testspec"
)

// PollInterval is the default local poll cadence (spec.md §4.8
// defaults): 15s. Nothing in this package reads it; LocalHandle.Poll
// checks the timeout whenever its caller polls.
const PollInterval = 15 * time.Second

const killGrace = 10 * time.Second

// Local launches a TestCase as a local subprocess: stdout+stderr to a
// per-test log file, stdin from /dev/null, its own process group so a
// timeout can SIGTERM/SIGKILL the whole tree.
type Local struct {
	// LogDir is the directory per-test log files are created in.
	LogDir string

	// Command builds the argv for a TestCase; if nil, the test's
	// execute-directory-relative name is run directly with no arguments
	// (the parser/sandbox layer is out of scope, per spec.md §1).
	Command func(tc *testcase.Case) []string
}

// Start launches tc and returns immediately with a pollable Handle.
// procIDs/deviceIDs are exposed to the child via VVTEST_PROCS/
// VVTEST_DEVICES environment variables for an MPI-aware test script to
// consume; this runner does not itself invoke mpirun.
func (l *Local) Start(tc *testcase.Case, procIDs, deviceIDs []int) (scheduler.Handle, error) {
	argv := l.commandFor(tc)
	if len(argv) == 0 {
		return nil, fmt.Errorf("runner: no command for test %s", tc.ID())
	}

	logPath := logFileName(l.LogDir, tc, "")
	logf, err := os.Create(logPath)
	if err != nil {
		return nil, errors.Wrapf(err, "runner: creating log file %s", logPath)
	}

	devnull, err := os.Open(os.DevNull)
	if err != nil {
		logf.Close()
		return nil, errors.Wrap(err, "runner: opening /dev/null")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = logf
	cmd.Stderr = logf
	cmd.Stdin = devnull
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Env = append(os.Environ(), envFor(procIDs, deviceIDs)...)

	if tc.Spec.ExecuteDir != "" {
		cmd.Dir = tc.Spec.ExecuteDir
	}

	if err := cmd.Start(); err != nil {
		logf.Close()
		devnull.Close()
		return nil, errors.Wrapf(err, "runner: starting test %s", tc.ID())
	}

	logrus.WithFields(logrus.Fields{"test": tc.ID(), "log": logPath}).Info("started local test")

	h := &LocalHandle{
		tc:      tc,
		cmd:     cmd,
		logf:    logf,
		devnull: devnull,
		logPath: logPath,
		start:   time.Now(),
		timeout: time.Duration(tc.Spec.Timeout) * time.Second,
		done:    make(chan struct{}),
	}
	go h.wait()
	return h, nil
}

func (l *Local) commandFor(tc *testcase.Case) []string {
	if l.Command != nil {
		return l.Command(tc)
	}
	if tc.Spec.RelPath == "" {
		return nil
	}
	return []string{tc.Spec.RelPath}
}

func envFor(procIDs, deviceIDs []int) []string {
	var env []string
	if len(procIDs) > 0 {
		env = append(env, "VVTEST_PROCS="+joinInts(procIDs))
	}
	if len(deviceIDs) > 0 {
		env = append(env, "VVTEST_DEVICES="+joinInts(deviceIDs))
	}
	return env
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

// logFileName builds "<name>[-<machine>]-<date>.log", matching the
// teacher's runjob.py Job.logname() scheme.
func logFileName(dir string, tc *testcase.Case, machine string) string {
	name := tc.Spec.Name
	if machine != "" {
		name += "-" + machine
	}
	name += "-" + time.Now().Format("Mon_Jan_02_2006_15:04:05") + ".log"
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// LocalHandle is a started local subprocess, satisfying
// scheduler.Handle via Poll.
type LocalHandle struct {
	tc      *testcase.Case
	cmd     *exec.Cmd
	logf    *os.File
	devnull *os.File
	logPath string

	start   time.Time
	timeout time.Duration

	done     chan struct{}
	waitErr  error
	finished bool

	killedForTimeout bool
}

func (h *LocalHandle) wait() {
	h.waitErr = h.cmd.Wait()
	close(h.done)
}

// Poll reports completion. It enforces the configured timeout by
// sending SIGTERM to the process group, waiting up to killGrace, then
// SIGKILL (spec.md §4.6).
func (h *LocalHandle) Poll() (bool, testspec.Result, string) {
	select {
	case <-h.done:
		h.finished = true
		return true, h.resultFromExit(), h.exitRaw()
	default:
	}

	if h.timeout > 0 && time.Since(h.start) > h.timeout && !h.killedForTimeout {
		h.killedForTimeout = true
		h.terminate()
	}

	return false, "", ""
}

func (h *LocalHandle) terminate() {
	pgid := -h.cmd.Process.Pid
	syscall.Kill(pgid, syscall.SIGTERM)
	go func() {
		select {
		case <-h.done:
		case <-time.After(killGrace):
			syscall.Kill(pgid, syscall.SIGKILL)
		}
	}()
}

func (h *LocalHandle) resultFromExit() testspec.Result {
	defer h.cleanup()

	if h.killedForTimeout {
		return testspec.ResultTimeout
	}
	if h.waitErr == nil {
		return testspec.ResultPass
	}
	if scanLogForDiff(h.logPath) {
		return testspec.ResultDiff
	}
	return testspec.ResultFail
}

func (h *LocalHandle) exitRaw() string {
	if h.cmd.ProcessState == nil {
		return ""
	}
	return strconv.Itoa(h.cmd.ProcessState.ExitCode())
}

func (h *LocalHandle) cleanup() {
	h.logf.Close()
	h.devnull.Close()
}

// scanLogForDiff looks at the trailing bytes of the log file for a
// "DIFF" marker, a convention borrowed from vvtest's result-keyword
// scanning (spec.md §4.6: "result based on exit + content scan of
// trailing log bytes").
func scanLogForDiff(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	const tail = 4096
	info, err := f.Stat()
	if err != nil {
		return false
	}
	size := info.Size()
	if size > tail {
		f.Seek(size-tail, 0)
	}
	buf := make([]byte, tail)
	n, _ := f.Read(buf)
	return bytes.Contains(buf[:n], []byte("DIFF"))
}
