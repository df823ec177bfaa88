package testlist

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/sandialabs/vvtest/pkg/testcase"
	"github.com/sandialabs/vvtest/pkg/testspec"
)

// ResultsSuffixLayout is the time.Time layout used for the per-run
// results-suffix appended to the master testlist filename (spec.md
// §4.10, §6).
const ResultsSuffixLayout = "2006-01-02_15:04:05"

// dateLayout is the leading per-record timestamp written by
// encodeAttrString and parsed back by parseAttrs, e.g.
// "Mon_Jan_02_15:04:05_2006".
const dateLayout = "Mon_Jan_02_15:04:05_2006"

const fileVersion = 1

// Attrs is the set of per-test attributes encoded on a "TEST:" line,
// following spec.md §4.10: "Day_Mon_DD_HH:MM:SS_YYYY xtime=<sec> <state>
// <result> [TDD]", with absent fields simply omitted.
type Attrs struct {
	Date   time.Time
	XTime  float64
	State  string // "done", "notrun", "timeout", "notdone"
	Result string
	TDD    bool

	// xdate is the record's own write time (Date, as unix seconds), used
	// by the reader to decide whether a later results file should
	// overwrite an earlier one.
	xdate int64
}

// WriteTestList writes the primary test-list file: version/start header,
// one TEST: line per case, and the finish marker. If suffix != "", the
// results_suffix attribute is recorded so readers know which per-run
// result files to look for.
func WriteTestList(w io.Writer, cases []*testcase.Case, suffix string) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "#VVT: Version = %d\n", fileVersion)
	fmt.Fprintf(bw, "#VVT: Start = %s\n", time.Now().Format(time.RFC3339))
	if suffix != "" {
		fmt.Fprintf(bw, "#VVT: Attrs = results_suffix=%s\n", suffix)
	}

	for _, tc := range cases {
		fmt.Fprintf(bw, "TEST: %s %s\n", tc.ID(), encodeAttrString(tc))
	}

	fmt.Fprintf(bw, "#VVT: Finish = %s\n", time.Now().Format(time.RFC3339))

	return bw.Flush()
}

// AppendResult appends one TEST: line to an open per-run results file
// (spec.md §4.10: "append-only per-run result logs").
func AppendResult(w io.Writer, tc *testcase.Case) error {
	_, err := fmt.Fprintf(w, "TEST: %s %s\n", tc.ID(), encodeAttrString(tc))
	return err
}

func encodeAttrString(tc *testcase.Case) string {
	st := tc.Status
	var parts []string

	now := time.Now()
	parts = append(parts, now.Format("Mon_Jan_02_15:04:05_2006"))
	if st.Runtime > 0 {
		parts = append(parts, fmt.Sprintf("xtime=%g", st.Runtime))
	}

	state := stateOf(st)
	if state != "" {
		parts = append(parts, state)
	}
	if st.Result != "" {
		parts = append(parts, string(st.Result))
	}
	if tc.Spec.Keywords.Has("TDD") {
		parts = append(parts, "TDD")
	}

	return strings.Join(parts, " ")
}

func stateOf(st *testspec.Status) string {
	switch {
	case st.IsSkipped():
		return "notrun"
	case st.Result == testspec.ResultTimeout:
		return "timeout"
	case st.IsDone():
		return "done"
	default:
		return "notdone"
	}
}

// ReadOptions configures ReadTestList's merge behavior.
type ReadOptions struct {
	// Resolve looks up (or constructs) the Case for a given execute-dir
	// as TEST: lines are encountered; the reader never constructs Specs
	// itself (that is the out-of-scope parser's job).
	Resolve func(xdir string) (*testcase.Case, bool)
}

// ReadTestList reads a master test-list file plus any trailing
// <path>.<results_suffix> result files and <path>.<results_suffix>
// include chains, merging outcomes into the already-registered Cases by
// overwriting whenever the new record's xdate is >= the previously
// recorded one (spec.md §4.10). Cycle protection tracks already-visited
// absolute paths.
func ReadTestList(path string, opts ReadOptions) error {
	visited := map[string]bool{}
	lastXdate := map[*testcase.Case]int64{}
	var merr *multierror.Error

	if err := readFileFollowIncludes(path, opts, visited, lastXdate, &merr); err != nil {
		merr = multierror.Append(merr, err)
	}

	return merr.ErrorOrNil()
}

func readFileFollowIncludes(path string, opts ReadOptions, visited map[string]bool, lastXdate map[*testcase.Case]int64, merr **multierror.Error) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if visited[abs] {
		return nil
	}
	visited[abs] = true

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("testlist: open %s: %w", path, err)
	}
	defer f.Close()

	var includes []string
	var suffix string

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "#VVT: Include = "):
			includes = append(includes, strings.TrimSpace(strings.TrimPrefix(line, "#VVT: Include = ")))
		case strings.HasPrefix(line, "#VVT: Attrs = "):
			suffix = parseResultsSuffix(line)
		case strings.HasPrefix(line, "TEST: "):
			if err := applyTestLine(line, opts, lastXdate); err != nil {
				*merr = multierror.Append(*merr, err)
				logrus.WithError(err).Warn("testlist: skipping malformed TEST line")
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("testlist: scan %s: %w", path, err)
	}

	if suffix != "" {
		resultsPath := path + "." + suffix
		if _, err := os.Stat(resultsPath); err == nil {
			if err := readFileFollowIncludes(resultsPath, opts, visited, lastXdate, merr); err != nil {
				*merr = multierror.Append(*merr, err)
			}
		}
	}

	for _, inc := range includes {
		full := inc
		if suffix != "" {
			full = inc + "." + suffix
		}
		if err := readFileFollowIncludes(full, opts, visited, lastXdate, merr); err != nil {
			*merr = multierror.Append(*merr, err)
		}
	}

	return nil
}

func parseResultsSuffix(line string) string {
	rest := strings.TrimPrefix(line, "#VVT: Attrs = ")
	for _, kv := range strings.Fields(rest) {
		if strings.HasPrefix(kv, "results_suffix=") {
			return strings.TrimPrefix(kv, "results_suffix=")
		}
	}
	return ""
}

func applyTestLine(line string, opts ReadOptions, lastXdate map[*testcase.Case]int64) error {
	rest := strings.TrimPrefix(line, "TEST: ")
	fields := strings.Fields(rest)
	if len(fields) < 1 {
		return fmt.Errorf("testlist: malformed TEST line: %q", line)
	}
	xdir := fields[0]
	attrs := parseAttrs(fields[1:])

	tc, ok := opts.Resolve(xdir)
	if !ok || tc == nil {
		return nil // unknown test, e.g. filtered out of this run; not an error
	}

	if !attrs.Date.IsZero() {
		if prev, seen := lastXdate[tc]; seen && attrs.xdate < prev {
			return nil // superseded by an already-applied, newer record
		}
		lastXdate[tc] = attrs.xdate
	}

	applyAttrs(tc, attrs)
	return nil
}

// parseAttrs decodes a TEST: line's attribute fields, following spec.md
// §4.10's "Day_Mon_DD_HH:MM:SS_YYYY xtime=<sec> <state> <result> [TDD]"
// layout: a leading date token (if present and parseable) followed by
// the remaining space-separated attributes in any order.
func parseAttrs(fields []string) Attrs {
	var a Attrs
	if len(fields) > 0 {
		if t, err := time.Parse(dateLayout, fields[0]); err == nil {
			a.Date = t
			a.xdate = t.Unix()
			fields = fields[1:]
		}
	}
	for _, f := range fields {
		switch {
		case strings.HasPrefix(f, "xtime="):
			if v, err := strconv.ParseFloat(strings.TrimPrefix(f, "xtime="), 64); err == nil {
				a.XTime = v
			}
		case f == "done", f == "notrun", f == "timeout", f == "notdone":
			a.State = f
		case f == "TDD":
			a.TDD = true
		case isResultWord(f):
			a.Result = f
		}
	}
	return a
}

func applyAttrs(tc *testcase.Case, attrs Attrs) {
	st := tc.Status
	if attrs.XTime > 0 {
		st.Runtime = attrs.XTime
	}
	if attrs.Result != "" {
		st.Result = testspec.Result(attrs.Result)
	}
}

func isResultWord(s string) bool {
	switch testspec.Result(s) {
	case testspec.ResultPass, testspec.ResultFail, testspec.ResultDiff,
		testspec.ResultTimeout, testspec.ResultNotrun, testspec.ResultNotdone, testspec.ResultSkip:
		return true
	default:
		return false
	}
}
