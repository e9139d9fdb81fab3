package decision

import (
	"sdclean/internal/rules"
	"sdclean/internal/safety"
	"sdclean/internal/scan"
)

type Verdict string

const (
	Accept Verdict = "accept"
	Reject Verdict = "reject"
)

// Decision reasons. Veto rejections use VetoReason.
const (
	ReasonJunk      = "matches-junk-pattern"
	ReasonEmptyDir  = "empty-directory"
	ReasonProtected = "protected-path"
	ReasonNoMatch   = "no-match"
)

// VetoReason is the reason recorded when the named veto rejects a candidate.
func VetoReason(name string) string { return "vetoed:" + name }

// Decision is the verdict for one candidate.
type Decision struct {
	Candidate *scan.Candidate
	Verdict   Verdict
	Reason    string
}

func (d Decision) Accepted() bool { return d.Verdict == Accept }

// Engine decides candidates. Protection is checked again here, not only in
// the walker.
type Engine struct {
	guard  *safety.Guard
	rules  *rules.RuleSet
	vetoes []Veto
}

func NewEngine(guard *safety.Guard, rs *rules.RuleSet, vetoes ...Veto) *Engine {
	return &Engine{guard: guard, rules: rs, vetoes: vetoes}
}

// Decide has no side effects beyond what individual vetoes read.
func (e *Engine) Decide(c *scan.Candidate) Decision {
	if e.protected(c) {
		return Decision{Candidate: c, Verdict: Reject, Reason: ReasonProtected}
	}

	reason := ReasonJunk
	if c.Kind == scan.KindEmptyDir {
		reason = ReasonEmptyDir
	} else if !e.rules.MatchesJunk(c) {
		return Decision{Candidate: c, Verdict: Reject, Reason: ReasonNoMatch}
	}

	for _, v := range e.vetoes {
		if v.Veto(c) {
			return Decision{Candidate: c, Verdict: Reject, Reason: VetoReason(v.Name())}
		}
	}
	return Decision{Candidate: c, Verdict: Accept, Reason: reason}
}

func (e *Engine) protected(c *scan.Candidate) bool {
	for _, p := range []string{c.Path, c.Alias} {
		if p == "" {
			continue
		}
		if e.guard.IsProtected(p) {
			return true
		}
		if c.IsDir() && e.guard.ContainsProtected(p) {
			return true
		}
	}
	return false
}
