// Package smoketest models the manual verification pass run against a
// freshly launched network: a fixed list of questions, each answered
// yes, no or n/a.
package smoketest

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Answer is the operator's response to one question.
type Answer string

const (
	Yes Answer = "yes"
	No  Answer = "no"
	NA  Answer = "n/a"
)

// Valid reports whether a is one of the enumerated answers.
func (a Answer) Valid() bool {
	return a == Yes || a == No || a == NA
}

// ParseAnswer accepts the usual spellings (y, yes, n, no, na, n/a, -).
func ParseAnswer(s string) (Answer, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes":
		return Yes, nil
	case "n", "no":
		return No, nil
	case "na", "n/a", "-":
		return NA, nil
	}
	return "", fmt.Errorf("invalid answer %q (expected yes, no or n/a)", s)
}

// Result is the overall outcome of a smoke test.
type Result string

const (
	NotRun Result = "not_run"
	Passed Result = "passed"
	Failed Result = "failed"
)

// ErrNoAnswers is returned when evaluating an empty answer set.
var ErrNoAnswers = errors.New("no smoke test answers recorded")

// Question is one check in the questionnaire.
type Question struct {
	Key  string
	Text string
}

// DefaultQuestions is the checklist run after a network launch.
var DefaultQuestions = []Question{
	{"nodes", "Are all nodes running?"},
	{"bootstrap", "Are the bootstrap cache files available?"},
	{"dashboard", "Is the main dashboard receiving data?"},
	{"generic-peers", "Do nodes on generic hosts have open connections and connected peers?"},
	{"peer-cache-peers", "Do nodes on peer cache hosts have open connections and connected peers?"},
	{"symmetric-nat-peers", "Do symmetric NAT private nodes have open connections and connected peers?"},
	{"full-cone-nat-peers", "Do full cone NAT private nodes have open connections and connected peers?"},
	{"elk", "Is ELK receiving logs?"},
	{"antctl-version", "Is `antctl` on the correct version?"},
	{"antnode-version", "Is `antnode` on the correct version?"},
	{"reserved-ips", "Are the correct reserved IPs allocated?"},
	{"client-dashboard", "Is the client dashboard receiving data?"},
	{"client-wallets", "Do client wallets have funds?"},
	{"ant-version", "Is `ant` on the correct version?"},
	{"uploaders", "Do the uploaders have no errors?"},
}

// Answers maps question keys to answers.
type Answers map[string]Answer

// Validate checks every answer is one of the enumerated values.
func (a Answers) Validate() error {
	if len(a) == 0 {
		return ErrNoAnswers
	}
	for key, ans := range a {
		if !ans.Valid() {
			return fmt.Errorf("question %q: invalid answer %q", key, ans)
		}
	}
	return nil
}

// Evaluate computes the overall result: failed if any answer is no,
// passed otherwise.
func Evaluate(a Answers) (Result, error) {
	if err := a.Validate(); err != nil {
		return NotRun, err
	}
	for _, ans := range a {
		if ans == No {
			return Failed, nil
		}
	}
	return Passed, nil
}

// Ordered returns the answers in questionnaire order. Keys not in
// questions follow, sorted.
func (a Answers) Ordered(questions []Question) []QuestionAnswer {
	out := make([]QuestionAnswer, 0, len(a))
	seen := make(map[string]bool, len(questions))
	for _, q := range questions {
		if ans, ok := a[q.Key]; ok {
			out = append(out, QuestionAnswer{Question: q, Answer: ans})
			seen[q.Key] = true
		}
	}

	var extra []string
	for key := range a {
		if !seen[key] {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		out = append(out, QuestionAnswer{Question: Question{Key: key, Text: key}, Answer: a[key]})
	}
	return out
}

// QuestionAnswer pairs a question with its answer.
type QuestionAnswer struct {
	Question Question
	Answer   Answer
}
