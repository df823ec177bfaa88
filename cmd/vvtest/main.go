// Command vvtest scans a manifest of parameterized tests, filters and
// schedules them subject to dependency and resource constraints, and
// runs them locally or submits them through a batch resource manager
// (spec.md §2, §6).
package main

import (
	"github.com/sirupsen/logrus"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		logrus.WithError(err).Fatal("vvtest: command failed")
	}
}
