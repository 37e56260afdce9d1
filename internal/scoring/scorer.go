// Package scoring rates how demanding a chat query is on a 1-10 scale.
//
// DESIGN: Scoring delegates to a cheap grader model and must never block the
// pipeline. Any failure (transport, timeout, unparseable output) yields the
// neutral default of 5 with Defaulted=true so telemetry can distinguish
// "genuinely scored 5" from "defaulted due to failure". No retries: a wrong
// guess only biases cost, never the correctness of the final answer.
package scoring

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// DefaultLevel is used whenever the grader cannot produce a usable score.
const DefaultLevel = 5

// complexityGuide is the fixed grading instruction sent as the system prompt.
const complexityGuide = `You are a task complexity analyzer. Your job is to analyze user queries and determine their complexity level from 1-10.

Complexity Level Guidelines:

1-2 (Very Simple):
- Simple factual questions ("What is X?", "Define Y")
- Basic greetings or simple responses
- Minimal text generation or simple explanations

3-4 (Simple):
- Text summarization of short content
- Simple explanations or clarifications
- Basic question-answering
- Short text generation

5-6 (Moderate):
- Longer text summarization
- Moderate text generation or creative writing
- Explanation of moderately complex topics
- Basic code-related questions
- Reasoning over moderate data

7-8 (Complex):
- Complex code generation or debugging
- Advanced reasoning tasks
- Analysis of complex topics
- Multi-step problem solving
- Creative content generation requiring deep thinking

9-10 (Very Complex):
- Highly complex code architecture or implementation
- Advanced mathematical or scientific reasoning
- Creative and sophisticated content generation
- Multi-faceted analysis requiring deep expertise
- Tasks requiring extensive context understanding

Output ONLY a single integer from 1 to 10 representing the complexity level.
Do NOT include any explanation, just the number.`

// scoreToken matches the first bounded 1-10 integer in the grader's reply.
var scoreToken = regexp.MustCompile(`\b([1-9]|10)\b`)

// Grader is the capability the scorer needs from a provider: a single
// low-variance completion call.
type Grader interface {
	Grade(ctx context.Context, system, user string) (string, error)
}

// Score is the outcome of rating one query.
type Score struct {
	Level     int    // 1..10
	Defaulted bool   // true when Level is the failure default
	Reason    string // why the default was used, empty otherwise
}

// Scorer rates queries using a grader model.
type Scorer struct {
	grader Grader
}

// New creates a Scorer backed by the given grader.
func New(grader Grader) *Scorer {
	return &Scorer{grader: grader}
}

// Score rates a single query. It never returns an error: failures collapse
// to the neutral default so scoring cannot stall the serving path.
func (s *Scorer) Score(ctx context.Context, query string) Score {
	if s.grader == nil {
		return Score{Level: DefaultLevel, Defaulted: true, Reason: "no grader configured"}
	}

	reply, err := s.grader.Grade(ctx, complexityGuide, "Analyze this query:\n\n"+query)
	if err != nil {
		log.Warn().Err(err).Msg("scoring: grader call failed, defaulting to 5")
		return Score{Level: DefaultLevel, Defaulted: true, Reason: "grader call failed: " + err.Error()}
	}

	level, ok := parseLevel(reply)
	if !ok {
		log.Warn().Str("reply", truncate(reply, 80)).Msg("scoring: unparseable grader reply, defaulting to 5")
		return Score{Level: DefaultLevel, Defaulted: true, Reason: "unparseable grader reply"}
	}
	return Score{Level: level}
}

// parseLevel extracts the first bounded 1-10 token from a grader reply.
func parseLevel(reply string) (int, bool) {
	match := scoreToken.FindString(strings.TrimSpace(reply))
	if match == "" {
		return 0, false
	}
	level, err := strconv.Atoi(match)
	if err != nil || level < 1 || level > 10 {
		return 0, false
	}
	return level, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
