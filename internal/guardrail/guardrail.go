// Package guardrail screens questions before the pipeline spends anything
// on them.
//
// Two independent checks run in order: an injection check against known
// instruction-override phrasing, then a topic check against the
// institution vocabulary. Both are pure string classification; no provider
// is ever called for a rejected question.
package guardrail

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/aulahq/aula/internal/log"
)

// Reason explains a rejection.
type Reason string

const (
	// ReasonNone marks an accepted question.
	ReasonNone Reason = ""

	// ReasonOffTopic marks a question outside the institution's domain.
	ReasonOffTopic Reason = "off_topic"

	// ReasonInjection marks a detected prompt-injection attempt.
	ReasonInjection Reason = "injection"
)

// Decision is the outcome of classifying one question.
type Decision struct {
	Allowed  bool
	Reason   Reason
	Patterns []string // matched injection patterns, for logging only
}

// baseVocabulary covers the institution domain. Deployment-specific terms
// are appended via config; matching is word-boundary and case-insensitive.
var baseVocabulary = []string{
	"admission", "admissions", "application", "apply",
	"campus", "certificate", "class", "classes", "course", "courses",
	"credit", "credits", "curriculum", "deadline", "degree", "diploma",
	"dormitory", "enroll", "enrollment", "exam", "exams", "faculty",
	"fee", "fees", "grade", "grades", "graduation", "instructor",
	"lecture", "lectures", "library", "major", "professor", "program",
	"register", "registration", "scholarship", "schedule", "semester",
	"student", "students", "syllabus", "teacher", "transcript",
	"transfer", "tuition", "workshop",
}

// injectionPatterns catch common instruction-override phrasing. No filter
// is perfect; sophisticated attacks can slip past pattern matching, which
// is why the system prompt also constrains the model.
var injectionPatterns = []string{
	`(?i)ignore\s+(all\s+)?(previous|above|prior)\s+(instructions?|prompts?|rules?)`,
	`(?i)disregard\s+(all\s+)?(previous|above|prior)\s+(instructions?|prompts?)`,
	`(?i)forget\s+(all\s+)?(previous|above|prior)\s+(instructions?|context)`,
	`(?i)override\s+(all\s+)?(previous|above|prior)\s+(instructions?|rules?)`,

	`(?i)^(pretend|act|behave|imagine)\s+(you\s+are|to\s+be|as\s+if|like)`,
	`(?i)^you\s+are\s+now\s+a`,
	`(?i)^from\s+now\s+on,?\s+you\s+(are|will|must)`,

	`(?i)^\s*(important|critical|urgent|system)\s*:\s*`,
	`(?i)^new\s+(instruction|task|rule)\s*:`,
	`(?i)^admin\s*(mode|override|command)\s*:`,

	`(?i)\]\s*\[\s*(system|assistant|instruction)`,
	`(?i)</?(system|instruction|prompt)>`,
	`(?i)---+\s*(system|new\s+instruction)`,

	`(?i)(print|reveal|show|output)\s+(your|the)\s+(system\s+)?(prompt|configuration|instructions?)`,
	`(?i)do\s+anything\s+now`,
	`(?i)jailbreak`,
	`(?i)bypass\s+(safety|filter|restrictions?)`,
}

// Classifier screens questions. Safe for concurrent use after construction.
type Classifier struct {
	injection []*regexp.Regexp
	topic     *regexp.Regexp
	logger    log.Logger
}

// New creates a Classifier. extraTerms extends the built-in vocabulary
// with deployment-specific words (institution name, local program names).
func New(extraTerms []string, logger log.Logger) *Classifier {
	compiled := make([]*regexp.Regexp, 0, len(injectionPatterns))
	for _, p := range injectionPatterns {
		if re, err := regexp.Compile(p); err == nil {
			compiled = append(compiled, re)
		}
	}

	return &Classifier{
		injection: compiled,
		topic:     compileVocabulary(append(append([]string{}, baseVocabulary...), extraTerms...)),
		logger:    logger,
	}
}

// compileVocabulary builds one word-boundary alternation over all terms.
func compileVocabulary(terms []string) *regexp.Regexp {
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(strings.ToLower(t))
		if t == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(t))
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)
}

// Check classifies one question. Injection runs first: an adversarial
// question that happens to mention a vocabulary word is still rejected.
func (c *Classifier) Check(question string) Decision {
	normalized := normalizeInput(question)

	if matched := c.matchInjection(normalized); len(matched) > 0 {
		c.logger.Warn("question rejected as injection attempt", "patterns", len(matched))
		return Decision{Allowed: false, Reason: ReasonInjection, Patterns: matched}
	}

	if !c.topic.MatchString(normalized) {
		c.logger.Debug("question rejected as off-topic")
		return Decision{Allowed: false, Reason: ReasonOffTopic}
	}

	return Decision{Allowed: true, Reason: ReasonNone}
}

func (c *Classifier) matchInjection(normalized string) []string {
	var detected []string
	for _, re := range c.injection {
		if re.MatchString(normalized) {
			detected = append(detected, re.String())
		}
	}
	return detected
}

// normalizeInput prepares a question for pattern matching: zero-width and
// combining characters are dropped so they cannot split a keyword, and all
// whitespace collapses to single spaces.
func normalizeInput(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.Is(unicode.Cf, r) || unicode.Is(unicode.Mn, r) {
			continue
		}
		if unicode.IsSpace(r) {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
