// Command peacheck runs the partial escape analysis pass over a handful of
// built-in demo graphs and prints the before/after IR plus the resulting
// deopt table. It is a standalone driver, not a test: useful for eyeballing
// what one pass invocation actually rewrites.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"

	"github.com/DataKinds/MoarVM/internal/pea"
	"github.com/DataKinds/MoarVM/internal/peademo"
)

var cli struct {
	Debug    bool   `help:"Raise logging to debug level." short:"d"`
	Scenario string `help:"Run only the named demo scenario; runs all of them if empty." short:"s"`
}

func main() {
	kong.Parse(&cli,
		kong.Name("peacheck"),
		kong.Description("Run partial escape analysis over built-in demo graphs."),
	)

	log := logrus.New()
	if cli.Debug {
		log.SetLevel(logrus.DebugLevel)
	}

	scenarios := peademo.All()
	if cli.Scenario != "" {
		var filtered []peademo.Scenario
		for _, s := range scenarios {
			if s.Name == cli.Scenario {
				filtered = append(filtered, s)
			}
		}
		if filtered == nil {
			fmt.Fprintf(os.Stderr, "peacheck: unknown scenario %q\n", cli.Scenario)
			os.Exit(1)
		}
		scenarios = filtered
	}

	failed := false
	for _, s := range scenarios {
		if !runScenario(s, log.WithField("scenario", s.Name)) {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

// runScenario drives one pass over s, recovering pea's single panic shape
// (IROops) so one bad scenario doesn't take the rest of the run down with
// it, and printing a stack trace pointing at the call site that raised it.
func runScenario(s peademo.Scenario, log *logrus.Entry) (ok bool) {
	fmt.Printf("=== %s ===\n%s\n\n", s.Name, s.Describe)
	fmt.Println("before:")
	fmt.Println(s.Builder.Format())

	defer func() {
		if r := recover(); r != nil {
			ok = false
			if oops, isOops := r.(*pea.IROops); isOops {
				fmt.Printf("invariant violation: %+v\n", oops.Unwrap())
				return
			}
			panic(r)
		}
	}()

	result := pea.Run(s.Builder, s.Types, log)

	fmt.Println("after:")
	fmt.Println(s.Builder.Format())

	if !result.Changed {
		fmt.Println("(nothing rewritten)")
		return true
	}

	fmt.Printf("deopt table: %d materialize descriptor(s), %d deopt point(s)\n",
		len(result.Deopt.MaterializeInfo), len(result.Deopt.DeoptPoint))
	for i, mi := range result.Deopt.MaterializeInfo {
		fmt.Printf("  materialize[%d]: type slot %d, %d attr reg(s)\n", i, mi.TypeSlot, len(mi.AttrRegs))
	}
	for _, dp := range result.Deopt.DeoptPoint {
		fmt.Printf("  deopt point %d: rebuild via materialize[%d]\n", dp.DeoptPointIdx, dp.MaterializeInfoIdx)
	}
	fmt.Println()
	return true
}
