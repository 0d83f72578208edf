package moderation

import (
	"context"
	"regexp"
)

// Rule maps a compiled pattern to a category and severity level.
type Rule struct {
	Pattern  *regexp.Regexp
	Category string
	Level    Level
}

// defaultRules is the built-in classifier table. First match wins, so more
// severe rules come first.
var defaultRules = []Rule{
	{regexp.MustCompile(`(?i)\b(kill|murder|kidnap|massacre|bomb|terrorism|school shooting)\b`), "violence_severe", L3},
	{regexp.MustCompile(`(?i)\b(suicide|kill myself|cut my wrists|end my life)\b`), "self_harm", L2},
	{regexp.MustCompile(`(?i)\b(sell(ing)? drugs|buy(ing)? drugs|drug trafficking|cook meth)\b`), "illegal_drugs", L2},
	{regexp.MustCompile(`(?i)\b(you (stupid )?idiot|worthless|useless trash)\b`), "toxicity", L1},
}

// RuleGate is a stateless, synchronous Gate backed by a regex rule table.
type RuleGate struct {
	rules []Rule
}

// NewRuleGate creates a gate with the built-in rule table.
func NewRuleGate() *RuleGate {
	return &RuleGate{rules: defaultRules}
}

// NewRuleGateWithRules creates a gate with a caller-supplied rule table,
// replacing the built-in one.
func NewRuleGateWithRules(rules []Rule) *RuleGate {
	return &RuleGate{rules: rules}
}

// Classify checks the message against the rule table. The first matching
// rule determines category and level.
func (g *RuleGate) Classify(_ context.Context, message string) (Verdict, error) {
	for _, rule := range g.rules {
		if rule.Pattern.MatchString(message) {
			return Flag(rule.Category, rule.Level)
		}
	}
	return Clean(), nil
}
