package platform

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"
	"github.com/montanaflynn/stats"
)

// RuntimeDB is the historical runtime database (spec.md §6 file layout:
// single-platform "runtimes", multi-platform "timings"), keyed by test
// execute-directory, holding every observed runtime sample so a
// percentile estimate can be produced for tests with no exact record.
type RuntimeDB struct {
	samples map[string][]float64
}

// NewRuntimeDB returns an empty database.
func NewRuntimeDB() *RuntimeDB {
	return &RuntimeDB{samples: map[string][]float64{}}
}

// Record appends one observed runtime for xdir.
func (db *RuntimeDB) Record(xdir string, seconds float64) {
	db.samples[xdir] = append(db.samples[xdir], seconds)
}

// Estimate returns a runtime estimate for xdir: the requested percentile
// (e.g. 90) of its historical samples via github.com/montanaflynn/stats,
// or def if no samples are recorded.
func (db *RuntimeDB) Estimate(xdir string, percentile, def float64) float64 {
	samples, ok := db.samples[xdir]
	if !ok || len(samples) == 0 {
		return def
	}
	if len(samples) == 1 {
		return samples[0]
	}
	p, err := stats.Percentile(samples, percentile)
	if err != nil {
		return def
	}
	return p
}

// LoadRuntimeFile reads a flat "<xdir> <seconds>" runtime database file,
// one record per line (the spec's "runtimes"/"timings" flat-file
// format), tolerating blank lines and "#"-prefixed comments.
func LoadRuntimeFile(path string) (*RuntimeDB, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("platform: open runtime db %s: %w", path, err)
	}
	defer f.Close()

	db := NewRuntimeDB()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		seconds, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			continue
		}
		db.Record(fields[0], seconds)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("platform: scan runtime db %s: %w", path, err)
	}
	return db, nil
}

// CheckEngineVersion validates a platform_plugin-declared minimum engine
// version against the running engine's version (spec.md §9's plugin
// contract extension, SPEC_FULL.md §4.9): an empty declared minimum
// always passes.
func CheckEngineVersion(engineVersion, declaredMin string) error {
	if strings.TrimSpace(declaredMin) == "" {
		return nil
	}
	running, err := version.NewVersion(engineVersion)
	if err != nil {
		return fmt.Errorf("platform: invalid engine version %q: %w", engineVersion, err)
	}
	required, err := version.NewVersion(declaredMin)
	if err != nil {
		return fmt.Errorf("platform: invalid plugin-declared minimum version %q: %w", declaredMin, err)
	}
	if running.LessThan(required) {
		return fmt.Errorf("platform: engine version %s is older than plugin-required minimum %s", running, required)
	}
	return nil
}
