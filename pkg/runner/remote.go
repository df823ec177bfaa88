package runner

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"github.com/sandialabs/vvtest/pkg/scheduler"
	"github.com/sandialabs/vvtest/pkg/testcase"
	"github.com/sandialabs/vvtest/pkg/testspec"
)

// Remote launches a TestCase on another host over SSH: the command runs
// detached in the background on the far side, and the local side pulls
// the whole remote log on every poll; the log's size is not checked
// first (spec.md §4.7).
type Remote struct {
	LogDir string
	Config *ssh.ClientConfig

	// Command builds the remote argv, same contract as Local.Command.
	Command func(tc *testcase.Case) []string

	// ConnectionAttempts bounds the exponential-backoff connect retry
	// (default 10, matching runjob.py's _connect).
	ConnectionAttempts int

	// PollInterval is the remote log-pull cadence (default 5 minutes,
	// matching runjob.py's remote_poll_interval default).
	PollInterval time.Duration
}

// Machine identifies the target host for a remote launch; callers that
// want a per-test machine attribute pass it here rather than threading
// it through testspec.Spec (which has no such field — remote placement
// is a scheduling decision, not a static test property).
type Machine struct {
	Host string
	User string
}

// Start dials Machine, launches tc's command in the background, and
// returns a pollable Handle. A COMMAND_DRYRUN environment variable
// (per spec.md §6: "", "1", or a "/"-separated name list) can make this
// a no-op that still creates the log file and records exit 0.
func (r *Remote) Start(tc *testcase.Case, m Machine, procIDs, deviceIDs []int) (scheduler.Handle, error) {
	logPath := logFileName(r.LogDir, tc, m.Host)

	if isDryRun(tc.Spec.Name) {
		f, err := os.Create(logPath)
		if err != nil {
			return nil, errors.Wrapf(err, "runner: dry-run log file %s", logPath)
		}
		f.Close()
		return &dryRunHandle{}, nil
	}

	argv := r.commandFor(tc)
	if len(argv) == 0 {
		return nil, fmt.Errorf("runner: no remote command for test %s", tc.ID())
	}

	attempts := r.ConnectionAttempts
	if attempts <= 0 {
		attempts = 10
	}
	client, err := dialWithRetry(m.Host, r.Config, attempts)
	if err != nil {
		return nil, errors.Wrapf(err, "runner: connecting to %s", m.Host)
	}

	remoteLog := remoteLogPath(tc, m.Host)
	timeout := tc.Spec.Timeout

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, errors.Wrap(err, "runner: opening ssh session")
	}
	defer session.Close()

	bgCmd := backgroundCommand(argv, remoteLog, tc.Spec.ExecuteDir, timeout)
	if err := session.Start(bgCmd); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "runner: starting remote command for %s", tc.ID())
	}

	poll := r.PollInterval
	if poll <= 0 {
		poll = 5 * time.Minute
	}

	logrus.WithFields(logrus.Fields{"test": tc.ID(), "machine": m.Host}).Info("started remote test")

	var monitor time.Duration
	if timeout > 0 {
		monitor = time.Duration(timeout)*time.Second + 2*time.Second
	}

	return &RemoteHandle{
		tc:         tc,
		client:     client,
		machine:    m.Host,
		remoteLog:  remoteLog,
		localLog:   logPath,
		start:      time.Now(),
		timeout:    monitor,
		pollPeriod: poll,
	}, nil
}

func (r *Remote) commandFor(tc *testcase.Case) []string {
	if r.Command != nil {
		return r.Command(tc)
	}
	if tc.Spec.RelPath == "" {
		return nil
	}
	return []string{tc.Spec.RelPath}
}

func remoteLogPath(tc *testcase.Case, machine string) string {
	return logFileName("", tc, machine)
}

// backgroundCommand wraps argv in a shell fragment that redirects
// output to remoteLog, optionally cds first, enforces timeout with a
// background watchdog, and reports "Subcommand exit: <n>" the way the
// teacher's remote-side Python template does.
func backgroundCommand(argv []string, remoteLog, chdir string, timeout int) string {
	var b strings.Builder
	if chdir != "" {
		fmt.Fprintf(&b, "cd %s && ", shellQuote(chdir))
	}
	cmd := shellJoin(argv)
	if timeout > 0 {
		fmt.Fprintf(&b, "( %s > %s 2>&1 & pid=$!; ( sleep %d && kill -TERM -$pid ) & watchdog=$!; wait $pid; x=$?; kill $watchdog 2>/dev/null; echo \"Subcommand exit: $x\" >> %s ) &\n",
			cmd, shellQuote(remoteLog), timeout, shellQuote(remoteLog))
	} else {
		fmt.Fprintf(&b, "( %s > %s 2>&1; echo \"Subcommand exit: $?\" >> %s ) &\n",
			cmd, shellQuote(remoteLog), shellQuote(remoteLog))
	}
	b.WriteString("disown")
	return b.String()
}

func shellJoin(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		parts[i] = shellQuote(a)
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func dialWithRetry(host string, cfg *ssh.ClientConfig, attempts int) (*ssh.Client, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(time.Duration(1<<uint(i)) * time.Second)
		}
		client, err := ssh.Dial("tcp", host, cfg)
		if err == nil {
			return client, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// RemoteHandle is a started remote job, polled by pulling the remote log
// and checking for the "Subcommand exit:" trailer.
type RemoteHandle struct {
	tc        *testcase.Case
	client    *ssh.Client
	machine   string
	remoteLog string
	localLog  string

	start      time.Time
	timeout    time.Duration
	pollPeriod time.Duration
	lastPoll   time.Time

	closed bool
}

// Poll pulls the remote log if enough time has elapsed since the last
// poll, scans it for a "Subcommand exit:" marker, and, for a test with
// a timeout, declares the job timed out if the monitor window
// (timeout+2s) has elapsed with no exit marker found.
func (h *RemoteHandle) Poll() (bool, testspec.Result, string) {
	if time.Since(h.lastPoll) < h.pollPeriod {
		return false, "", ""
	}
	h.lastPoll = time.Now()

	if err := h.pullLog(); err != nil {
		logrus.WithError(err).WithField("test", h.tc.ID()).Warn("failed to pull remote log")
	}

	if exit, ok := scanExitMarker(h.localLog); ok {
		h.close()
		if exit == "" {
			return true, testspec.ResultTimeout, ""
		}
		if n, err := strconv.Atoi(exit); err == nil && n == 0 {
			return true, testspec.ResultPass, exit
		}
		return true, testspec.ResultFail, exit
	}

	if h.timeout > 0 && time.Since(h.start) > h.timeout {
		h.close()
		return true, testspec.ResultTimeout, ""
	}

	return false, "", ""
}

func (h *RemoteHandle) pullLog() error {
	session, err := h.client.NewSession()
	if err != nil {
		return err
	}
	defer session.Close()

	var out bytes.Buffer
	session.Stdout = &out
	if err := session.Run("cat " + shellQuote(h.remoteLog)); err != nil {
		return err
	}

	return os.WriteFile(h.localLog, out.Bytes(), 0o644)
}

func (h *RemoteHandle) close() {
	if !h.closed {
		h.client.Close()
		h.closed = true
	}
}

func scanExitMarker(path string) (exit string, found bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	idx := bytes.LastIndex(data, []byte("Subcommand exit:"))
	if idx < 0 {
		return "", false
	}
	rest := string(data[idx+len("Subcommand exit:"):])
	line := strings.SplitN(rest, "\n", 2)[0]
	return strings.TrimSpace(line), true
}

func isDryRun(testName string) bool {
	v, set := os.LookupEnv("COMMAND_DRYRUN")
	if !set {
		return false
	}
	if v == "" || v == "1" {
		return true
	}
	for _, name := range strings.Split(v, "/") {
		if name == testName {
			return false
		}
	}
	return true
}

type dryRunHandle struct{ polled bool }

func (h *dryRunHandle) Poll() (bool, testspec.Result, string) {
	return true, testspec.ResultPass, "0"
}
