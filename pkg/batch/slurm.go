package batch

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Interface is the resource-manager binding a Packer submits Jobs
// through: submit a script, query running/pending state, cancel. SLURM
// is the only implementation (spec.md §4.9); others would plug in the
// same way.
type Interface interface {
	Submit(scriptPath, workdir, outfile, queue, account string) (jobID string, err error)
	Query(jobIDs []string) (map[string]string, error)
	Cancel(jobID string) error
}

// RunCmd runs argv (optionally in workdir) and returns its combined
// stdout+stderr, the way original_source/batch/slurm.py's injectable
// runcmd does. Overridable in tests.
type RunCmd func(argv []string, workdir string) (string, error)

func defaultRunCmd(argv []string, workdir string) (string, error) {
	cmd := exec.Command(argv[0], argv[1:]...)
	if workdir != "" {
		cmd.Dir = workdir
	}
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// SLURM submits/queries/cancels jobs via sbatch/squeue/scancel,
// line-for-line grounded on original_source/batch/slurm.py's BatchSLURM.
type SLURM struct {
	PPN         int
	DPN         int
	ExtraFlags  []string
	QoS         string
	Run         RunCmd
}

// NewSLURM builds a SLURM binding with sane defaults (ppn floored at 1,
// per slurm.py's max(ppn, 1)).
func NewSLURM(ppn, dpn int, extraFlags []string, qos string) *SLURM {
	if ppn < 1 {
		ppn = 1
	}
	if dpn < 0 {
		dpn = 0
	}
	return &SLURM{PPN: ppn, DPN: dpn, ExtraFlags: extraFlags, QoS: qos, Run: defaultRunCmd}
}

// Header renders the #SBATCH directive block for a job of the given
// processor count, device count, and walltime, writing output/error to
// outfile.
func (s *SLURM) Header(np, nd int, walltimeSeconds int, outfile string) string {
	nnodes := computeNumNodes(np, nd, s.PPN, s.DPN)

	var b strings.Builder
	fmt.Fprintf(&b, "#SBATCH --time=%s\n", hmsFormat(walltimeSeconds))
	fmt.Fprintf(&b, "#SBATCH --nodes=%d\n", nnodes)
	fmt.Fprintf(&b, "#SBATCH --output=%s\n", outfile)
	fmt.Fprintf(&b, "#SBATCH --error=%s\n", outfile)
	if s.QoS != "" {
		fmt.Fprintf(&b, "\n#SBATCH --qos=%s", s.QoS)
	}
	return b.String()
}

// Submit runs sbatch against an already-written script file and parses
// its job id out of "Submitted batch job <id>".
func (s *SLURM) Submit(scriptPath, workdir, outfile, queue, account string) (string, error) {
	argv := append([]string{"sbatch"}, s.ExtraFlags...)
	if queue != "" {
		argv = append(argv, "--partition="+queue)
	}
	if account != "" {
		argv = append(argv, "--account="+account)
	}
	if s.QoS != "" {
		argv = append(argv, "--qos="+s.QoS)
	}
	argv = append(argv, "--output="+outfile, "--error="+outfile, "--chdir="+workdir, scriptPath)

	out, runErr := s.Run(argv, workdir)

	i := strings.Index(out, "Submitted batch job")
	if i < 0 {
		if runErr != nil {
			return "", errors.Wrapf(runErr, "batch submission failed or could not parse output to obtain the job id: %s", out)
		}
		return "", errors.Errorf("batch submission failed or could not parse output to obtain the job id: %s", out)
	}
	fields := strings.Fields(out[i:])
	if len(fields) <= 3 {
		return "", errors.New("batch submission failed or could not parse output to obtain the job id")
	}
	return fields[3], nil
}

// Query reports each job id's state as "pending", "running", or ""
// (done or unknown), parsed from "squeue --noheader -o '%i %t'".
func (s *SLURM) Query(jobIDs []string) (map[string]string, error) {
	want := map[string]bool{}
	states := map[string]string{}
	for _, id := range jobIDs {
		want[id] = true
		states[id] = ""
	}

	out, err := s.Run([]string{"squeue", "--noheader", "-o", "%i %t"}, "")
	if err != nil {
		return states, errors.Wrap(err, "failed to run squeue")
	}

	var parseErr error
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		id := fields[0]
		if !want[id] {
			continue
		}
		switch fields[1] {
		case "R":
			states[id] = "running"
		case "PD":
			states[id] = "pending"
		default:
			states[id] = ""
		}
	}
	return states, parseErr
}

// Cancel runs scancel for the given job id.
func (s *SLURM) Cancel(jobID string) error {
	_, err := s.Run([]string{"scancel", jobID}, "")
	return err
}

// computeNumNodes returns the number of nodes needed to host np
// processes and nd devices given a node's processor-per-node and
// device-per-node capacity.
func computeNumNodes(np, nd, ppn, dpn int) int {
	if ppn < 1 {
		ppn = 1
	}
	nodesForProcs := ceilDiv(np, ppn)
	nodesForDevices := 1
	if dpn > 0 && nd > 0 {
		nodesForDevices = ceilDiv(maxInt(nd, 0), dpn)
	}
	n := maxInt(nodesForProcs, nodesForDevices)
	if n < 1 {
		n = 1
	}
	return n
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// hmsFormat renders nseconds as H:MM:SS (or M:SS when under an hour),
// the way slurm.py's HMSformat does. A value already containing a colon
// is passed through untouched.
func hmsFormat(nseconds int) string {
	return hmsFormatString(strconv.Itoa(nseconds))
}

func hmsFormatString(raw string) string {
	if strings.Contains(raw, ":") {
		return raw
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return raw
	}
	hrs := n / 3600
	rem := n - hrs*3600
	mins := rem / 60
	secs := rem - mins*60

	secStr := strconv.Itoa(secs)
	if secs < 10 {
		secStr = "0" + secStr
	}
	if hrs == 0 {
		return fmt.Sprintf("%d:%s", mins, secStr)
	}
	minStr := strconv.Itoa(mins)
	if mins < 10 {
		minStr = "0" + minStr
	}
	return fmt.Sprintf("%d:%s:%s", hrs, minStr, secStr)
}
