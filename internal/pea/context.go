package pea

import (
	"github.com/sirupsen/logrus"

	"github.com/DataKinds/MoarVM/internal/graph"
)

// Result is what one pass invocation hands back to its caller: whether it
// found anything to rewrite, and, if so, the deopt bridge's output table
// the consuming deoptimizer needs (§1's stated boundary: this module
// produces the table, never interprets it).
type Result struct {
	Changed bool
	Deopt   *DeoptTable
}

// Run drives one complete pass over b: analyze, and only if the sweep
// found anything, rewrite and populate the deopt table (§2's top-level
// "found anything?" gate; §5's per-pass resource lifetime — Tracker,
// ShadowFacts, GraphState, and Ledger all live only for the duration of
// this call and are discarded on return, win or lose).
func Run(b graph.Builder, types TypeResolver, log *logrus.Entry) Result {
	f := NewFacade(b)
	t := NewTracker()
	s := NewShadowFacts()
	l := NewLedger()

	a := NewAnalyzer(f, t, s, l, types, log)
	if !a.Run() {
		log.Debug("pea: nothing to rewrite")
		return Result{}
	}

	d := &DeoptTable{}
	r := NewRewriter(f, t, l, d, log)
	r.Run()

	log.WithField("transforms", l.Len()).Debug("pea: rewrite complete")
	return Result{Changed: true, Deopt: d}
}
