// ABOUTME: Pure trigger evaluation for agent turns
// ABOUTME: Mention beats explicit invoke beats message-count cadence

package trigger

import (
	"fmt"
	"regexp"
	"strings"
)

// Reason explains why (or why not) a message fired an agent turn.
type Reason string

const (
	ReasonNone     Reason = "none"
	ReasonMention  Reason = "mention"
	ReasonExplicit Reason = "explicit"
	ReasonCadence  Reason = "cadence"
)

// Decision is the outcome of evaluating a single message.
type Decision struct {
	Fire   bool
	Reason Reason
}

// DefaultCadence is the consecutive-human-message count that fires an
// unprompted agent turn.
const DefaultCadence = 5

// DefaultAliases are the names whose @-mention summons the agent.
var DefaultAliases = []string{"tess", "ai", "yelp"}

// Evaluator decides whether an incoming message starts an agent turn.
// Evaluation is pure: the same inputs always produce the same decision.
// Precedence is fixed: a mention always wins, then an explicit invoke,
// then cadence.
type Evaluator struct {
	cadence    int
	mentionRe  *regexp.Regexp
	aliasNames []string
}

// NewEvaluator builds an evaluator with the given cadence and mention
// aliases. Zero cadence disables cadence triggering; nil aliases use the
// defaults.
func NewEvaluator(cadence int, aliases []string) *Evaluator {
	if aliases == nil {
		aliases = DefaultAliases
	}
	quoted := make([]string, len(aliases))
	for i, a := range aliases {
		quoted[i] = regexp.QuoteMeta(strings.ToLower(a))
	}
	// Word-boundary match so "@tess!" fires and "email@tessier.com" does not.
	re := regexp.MustCompile(fmt.Sprintf(`(?i)(^|[^\w@])@(%s)\b`, strings.Join(quoted, "|")))
	return &Evaluator{
		cadence:    cadence,
		mentionRe:  re,
		aliasNames: aliases,
	}
}

// Mentioned reports whether the text @-mentions one of the agent aliases.
func (e *Evaluator) Mentioned(text string) bool {
	return e.mentionRe.MatchString(text)
}

// Evaluate decides whether a human message fires a turn. humanStreak is the
// count of consecutive human messages including this one.
func (e *Evaluator) Evaluate(text string, explicitInvoke bool, humanStreak int) Decision {
	if e.Mentioned(text) {
		return Decision{Fire: true, Reason: ReasonMention}
	}
	if explicitInvoke {
		return Decision{Fire: true, Reason: ReasonExplicit}
	}
	if e.cadence > 0 && humanStreak >= e.cadence {
		return Decision{Fire: true, Reason: ReasonCadence}
	}
	return Decision{Fire: false, Reason: ReasonNone}
}

// StripMention removes the leading agent mention from a message so the
// planner sees the request, not the summons.
func (e *Evaluator) StripMention(text string) string {
	return strings.TrimSpace(e.mentionRe.ReplaceAllString(text, "$1"))
}
