package extraction

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/voxd/internal/act"
)

// commitmentPattern matches one way people state commitments in
// conversation and maps it to a category and base confidence.
type commitmentPattern struct {
	name       string
	re         *regexp.Regexp
	category   act.Category
	confidence int
}

var commitmentPatterns = []commitmentPattern{
	{"need_to", regexp.MustCompile(`(?i)\bI need to ([^.!?\n]+)`), act.CategoryAction, 80},
	{"have_to", regexp.MustCompile(`(?i)\bI have to ([^.!?\n]+)`), act.CategoryAction, 80},
	{"going_to", regexp.MustCompile(`(?i)\bI(?:'m| am) going to ([^.!?\n]+)`), act.CategoryAction, 70},
	{"should", regexp.MustCompile(`(?i)\bI should ([^.!?\n]+)`), act.CategoryAction, 60},
	{"dont_forget", regexp.MustCompile(`(?i)\bdon't forget to ([^.!?\n]+)`), act.CategoryAction, 85},
	{"remind_me", regexp.MustCompile(`(?i)\bremind me to ([^.!?\n]+)`), act.CategoryAction, 85},
	{"watch_out", regexp.MustCompile(`(?i)\bwatch out for ([^.!?\n]+)`), act.CategoryWatchOut, 75},
	{"careful", regexp.MustCompile(`(?i)\bbe careful (?:about|with|of) ([^.!?\n]+)`), act.CategoryWatchOut, 70},
	{"waiting_on", regexp.MustCompile(`(?i)\b(?:I'm |I am )?waiting (?:on|for) ([^.!?\n]+)`), act.CategoryDependsOn, 70},
	{"depends_on", regexp.MustCompile(`(?i)\bdepends on ([^.!?\n]+)`), act.CategoryDependsOn, 65},
	{"note_that", regexp.MustCompile(`(?i)\bnote that ([^.!?\n]+)`), act.CategoryNote, 60},
}

var urgencyMarkers = regexp.MustCompile(`(?i)\b(urgent|asap|right away|immediately|critical)\b`)

// abbreviations would otherwise terminate a commitment capture at
// their period, truncating "call Dr. Smith tomorrow" to "call Dr".
var abbreviations = strings.NewReplacer(
	"Dr.", "Dr", "Mr.", "Mr", "Mrs.", "Mrs", "Ms.", "Ms",
	"St.", "St", "vs.", "vs", "e.g.", "eg", "i.e.", "ie",
)

// dueExpressions are scanned inside a matched commitment to pull out
// the time signal, longest first so "next week" wins over weekday hits.
var dueExpressions = []string{
	"next week", "this week", "tomorrow", "tonight", "today",
	"by monday", "by tuesday", "by wednesday", "by thursday", "by friday",
	"by saturday", "by sunday",
	"on monday", "on tuesday", "on wednesday", "on thursday", "on friday",
	"on saturday", "on sunday",
}

// heuristicExtractor is the offline, pattern-based backend. It needs
// no network and no credentials, which also makes it the deterministic
// backend for tests.
type heuristicExtractor struct{}

func (h *heuristicExtractor) method() act.Method { return act.MethodHeuristic }

func (h *heuristicExtractor) run(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Transcript) == "" {
		return nil, fmt.Errorf("heuristic extraction requires a transcript")
	}

	transcript := abbreviations.Replace(req.Transcript)

	var acts []act.Act
	seen := make(map[string]bool)
	for _, p := range commitmentPatterns {
		for _, m := range p.re.FindAllStringSubmatch(transcript, -1) {
			text := verbFirst(strings.TrimSpace(m[1]))
			if text == "" || seen[strings.ToLower(text)] {
				continue
			}
			seen[strings.ToLower(text)] = true
			acts = append(acts, h.buildAct(req, text, p))
		}
	}

	return &Result{
		Summary:  summarize(req.Transcript),
		Insights: h.insights(req.Transcript, acts),
		Acts:     acts,
		Method:   act.MethodHeuristic,
	}, nil
}

func (h *heuristicExtractor) buildAct(req Request, text string, p commitmentPattern) act.Act {
	due := findDueExpression(text)
	priority := 3
	if urgencyMarkers.MatchString(text) {
		priority = 1
	} else if due == "today" || due == "tonight" || due == "tomorrow" {
		priority = 2
	}

	a := act.Act{
		ID:         uuid.New().String(),
		SessionID:  req.SessionID,
		Text:       text,
		Category:   p.category,
		Assignee:   "me",
		DueContext: due,
		Priority:   priority,
		Confidence: p.confidence,
		Method:     act.MethodHeuristic,
		Status:     act.StatusNotStarted,
	}

	if due != "" {
		if resolved, ok := ResolveDueContext(due, req.CapturedAt); ok {
			a.ProposedDate = formatDate(resolved)
			a.DateRationale = describeResolution(due, resolved)
		}
	}
	a.ProposedTime = nudgeCollision(a.ProposedDate, a.ProposedTime, req.Calendar)
	return a
}

// insights synthesizes the 3-insight floor from what the patterns saw.
// Heuristic output is inherently shallow; it marks itself low-importance.
func (h *heuristicExtractor) insights(transcript string, acts []act.Act) []Insight {
	counts := make(map[act.Category]int)
	for _, a := range acts {
		counts[a.Category]++
	}

	out := []Insight{
		{Type: InsightPractical, Text: fmt.Sprintf("Conversation surfaced %d actionable commitments", counts[act.CategoryAction]), Importance: 3},
	}
	if counts[act.CategoryDependsOn] > 0 {
		out = append(out, Insight{Type: InsightRelationship, Text: fmt.Sprintf("%d items depend on other people", counts[act.CategoryDependsOn]), Importance: 3})
	} else {
		out = append(out, Insight{Type: InsightPractical, Text: "No external dependencies were mentioned", Importance: 5})
	}
	if counts[act.CategoryWatchOut] > 0 {
		out = append(out, Insight{Type: InsightEmotional, Text: fmt.Sprintf("%d watch-outs suggest sources of worry", counts[act.CategoryWatchOut]), Importance: 4})
	} else {
		out = append(out, Insight{Type: InsightEmotional, Text: "No explicit worries were voiced", Importance: 5})
	}
	return out
}

// findDueExpression returns the first recognized time expression in
// text, preferring longer expressions.
func findDueExpression(text string) string {
	lower := strings.ToLower(text)
	for _, expr := range dueExpressions {
		if strings.Contains(lower, expr) {
			return expr
		}
	}
	return ""
}

// verbFirst normalizes a matched fragment into a verb-first action
// statement: leading filler dropped, first letter capitalized.
func verbFirst(text string) string {
	for _, filler := range []string{"to ", "really ", "probably ", "just "} {
		text = strings.TrimPrefix(text, filler)
	}
	if text == "" {
		return ""
	}
	runes := []rune(text)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// summarize produces a short narrative summary: the first two
// sentences, capped.
func summarize(transcript string) string {
	transcript = strings.TrimSpace(transcript)
	var sentences []string
	start := 0
	for i, r := range transcript {
		if r == '.' || r == '!' || r == '?' {
			s := strings.TrimSpace(transcript[start : i+1])
			if s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
			if len(sentences) == 2 {
				break
			}
		}
	}
	if len(sentences) == 0 {
		if len(transcript) > 200 {
			return transcript[:200] + "..."
		}
		return transcript
	}
	return strings.Join(sentences, " ")
}
