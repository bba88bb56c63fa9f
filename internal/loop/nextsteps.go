package loop

import (
	"bufio"
	"strings"
)

// Headings that introduce actionable follow-up lists in agent output.
var nextStepHeadings = []string{
	"next steps",
	"next step",
	"todo",
	"to do",
	"remaining work",
	"follow-up",
	"follow up",
	"followup",
}

const maxNextSteps = 20

// ExtractNextSteps pulls list items that follow a "next steps" style heading.
// Extraction is best effort: agent output is free-form, so anything that does
// not match cleanly is ignored rather than guessed at.
func ExtractNextSteps(logContent string) []string {
	var steps []string
	inSection := false

	sc := bufio.NewScanner(strings.NewReader(logContent))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if isNextStepHeading(line) {
			inSection = true
			continue
		}
		if !inSection {
			continue
		}
		if item, ok := listItem(line); ok {
			steps = append(steps, item)
			if len(steps) >= maxNextSteps {
				break
			}
			continue
		}
		// A blank line inside a list is tolerated; any other prose or a
		// new heading ends the section.
		if line != "" {
			inSection = false
		}
	}
	return steps
}

func isNextStepHeading(line string) bool {
	h := strings.ToLower(strings.TrimLeft(line, "# "))
	h = strings.TrimSuffix(strings.TrimSpace(h), ":")
	for _, want := range nextStepHeadings {
		if h == want {
			return true
		}
	}
	return false
}

func listItem(line string) (string, bool) {
	for _, prefix := range []string{"- ", "* ", "+ "} {
		if strings.HasPrefix(line, prefix) {
			item := strings.TrimSpace(line[len(prefix):])
			return item, item != ""
		}
	}
	// Numbered items: "1. thing" or "1) thing".
	for i := 0; i < len(line); i++ {
		c := line[i]
		if c >= '0' && c <= '9' {
			continue
		}
		if i > 0 && (c == '.' || c == ')') && i+1 < len(line) && line[i+1] == ' ' {
			item := strings.TrimSpace(line[i+2:])
			return item, item != ""
		}
		break
	}
	return "", false
}

// dedupeKey normalizes a step so trivially restated suggestions collapse.
func dedupeKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
