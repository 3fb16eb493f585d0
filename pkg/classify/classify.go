// Package classify partitions individual test timings into slow and fast
// groups using a derived mean-duration threshold, with class-level
// propagation: once any test of a class is slow, the whole class is.
package classify

import "strings"

// Occurrence is a single test execution reported by the build server.
// Name is the qualified test name, which may carry a suite prefix
// separated by ':' and a member suffix separated by '.'.
type Occurrence struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Duration int64  `json:"duration_ms"`
}

// Outcome is the result of partitioning a set of occurrences.
type Outcome struct {
	// Threshold is the mean per-test duration the partition was derived
	// from, in milliseconds.
	Threshold int64 `json:"threshold_ms"`

	// TestExecutionTime is the aggregate test phase duration the
	// threshold was derived from.
	TestExecutionTime int64 `json:"test_execution_ms"`

	Slow []Occurrence `json:"slow"`
	Fast []Occurrence `json:"fast"`

	SlowTotal int64 `json:"slow_total_ms"`
	FastTotal int64 `json:"fast_total_ms"`
}

// ClassName derives the test class from a qualified test name: anything
// up to and including the first ':' is a suite qualifier and is stripped,
// then the member suffix starting at the last '.' is stripped. A name
// without a '.' is its own class.
func ClassName(qualified string) string {
	if idx := strings.Index(qualified, ":"); idx >= 0 {
		qualified = qualified[idx+1:]
	}

	if idx := strings.LastIndex(qualified, "."); idx >= 0 {
		return qualified[:idx]
	}

	return qualified
}

// Partition classifies occurrences as slow or fast against a threshold of
// testExecutionTime / testCount (integer division). testCount is the
// authoritative suite size, which may differ from len(occurrences).
// Returns nil when testExecutionTime is absent or testCount is zero;
// that means no data, not an error.
//
// Classification is a single pass in the given order. An occurrence is
// slow when its duration exceeds the threshold or its class has already
// produced a slow occurrence earlier in the pass; each slow occurrence
// marks its class. The order dependency is deliberate: a slow hit infects
// every later occurrence of the class but never reaches back.
func Partition(occurrences []Occurrence, testCount int, testExecutionTime *int64) *Outcome {
	if testExecutionTime == nil || testCount == 0 {
		return nil
	}

	outcome := &Outcome{
		Threshold:         *testExecutionTime / int64(testCount),
		TestExecutionTime: *testExecutionTime,
	}

	slowClasses := make(map[string]struct{})

	for _, occ := range occurrences {
		class := ClassName(occ.Name)
		_, infected := slowClasses[class]

		if occ.Duration > outcome.Threshold || infected {
			slowClasses[class] = struct{}{}
			outcome.Slow = append(outcome.Slow, occ)
			outcome.SlowTotal += occ.Duration

			continue
		}

		outcome.Fast = append(outcome.Fast, occ)
		outcome.FastTotal += occ.Duration
	}

	return outcome
}

// SlowAverage returns the mean duration of the slow group.
func (o *Outcome) SlowAverage() int64 {
	if len(o.Slow) == 0 {
		return 0
	}

	return o.SlowTotal / int64(len(o.Slow))
}

// FastAverage returns the mean duration of the fast group.
func (o *Outcome) FastAverage() int64 {
	if len(o.Fast) == 0 {
		return 0
	}

	return o.FastTotal / int64(len(o.Fast))
}

// SlowClasses returns the distinct classes of the slow group in first-hit
// order, the consumable shape for a suite split.
func (o *Outcome) SlowClasses() []string {
	seen := make(map[string]struct{}, len(o.Slow))
	classes := make([]string, 0, len(o.Slow))

	for _, occ := range o.Slow {
		class := ClassName(occ.Name)
		if _, ok := seen[class]; ok {
			continue
		}

		seen[class] = struct{}{}
		classes = append(classes, class)
	}

	return classes
}

// FastClasses returns the distinct classes of the fast group in first-hit
// order, excluding classes that also appear in the slow group.
func (o *Outcome) FastClasses() []string {
	slow := make(map[string]struct{}, len(o.Slow))
	for _, occ := range o.Slow {
		slow[ClassName(occ.Name)] = struct{}{}
	}

	seen := make(map[string]struct{}, len(o.Fast))
	classes := make([]string, 0, len(o.Fast))

	for _, occ := range o.Fast {
		class := ClassName(occ.Name)
		if _, ok := slow[class]; ok {
			continue
		}

		if _, ok := seen[class]; ok {
			continue
		}

		seen[class] = struct{}{}
		classes = append(classes, class)
	}

	return classes
}

// HypotheticalBuildTimes returns what the total build duration would be
// if the suite were restricted to only the slow or only the fast group:
// (buildTotal − testExecutionTime) + group total.
func (o *Outcome) HypotheticalBuildTimes(buildTotal int64) (slowOnly, fastOnly int64) {
	base := buildTotal - o.TestExecutionTime

	return base + o.SlowTotal, base + o.FastTotal
}
