package services

import (
	"regexp"
	"strings"

	"hyperbuild-web/internal/domain/models"
	"hyperbuild-web/pkg/logger"

	"go.uber.org/zap"
)

const (
	artifactTag      = "boltArtifact"
	actionTag        = "boltAction"
	artifactCloseTag = "</" + artifactTag + ">"
	actionCloseTag   = "</" + actionTag + ">"

	actionTypeFile  = "file"
	actionTypeShell = "shell"

	responseTitle = "Response"
)

var attrPatterns = map[string]*regexp.Regexp{}

func init() {
	for _, name := range []string{"id", "title", "type", "filePath"} {
		attrPatterns[name] = regexp.MustCompile(`(?:^|\s)` + name + `\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	}
}

// ArtifactParser turns an assistant reply into an ordered build plan.
//
// It is a tolerant scanner, not an XML parser: it only recognises the
// artifact and action tags and looks attributes up by name. Anything it
// cannot make sense of shrinks the plan instead of failing it.
type ArtifactParser struct{}

// NewArtifactParser creates a parser.
func NewArtifactParser() *ArtifactParser {
	return &ArtifactParser{}
}

// Parse returns the steps found in text, numbered from 1 in order of
// appearance. Status is left unset for the caller to decide.
func (p *ArtifactParser) Parse(text string) []models.Step {
	openIdx := findOpenTag(text, artifactTag, 0)
	if openIdx < 0 {
		return []models.Step{{ID: 1, Type: models.StepText, Title: responseTitle, Description: text}}
	}

	openTag, bodyStart := readOpenTag(text, openIdx)
	bodyStart = min(bodyStart, len(text))
	bodyEnd := len(text)
	if rel := strings.Index(text[bodyStart:], artifactCloseTag); rel >= 0 {
		bodyEnd = bodyStart + rel
	} else {
		logger.Debug("artifact not closed, reading to end of input", zap.Int("offset", openIdx))
	}
	body := text[bodyStart:bodyEnd]

	firstAction := findOpenTag(body, actionTag, 0)
	preamble := body
	if firstAction >= 0 {
		preamble = body[:firstAction]
	}

	steps := []models.Step{{
		ID:          1,
		Type:        models.StepText,
		Title:       attr(openTag, "title"),
		Description: joinProse(text[:openIdx], preamble),
	}}

	for pos := firstAction; pos >= 0; {
		tag, contentStart := readOpenTag(body, pos)
		if contentStart > len(body) {
			break
		}

		contentEnd := contentStart
		if !strings.HasSuffix(tag, "/>") {
			contentEnd = actionEnd(body, contentStart)
		}

		if step, ok := actionStep(tag, body[contentStart:contentEnd]); ok {
			step.ID = len(steps) + 1
			steps = append(steps, step)
		}
		pos = findOpenTag(body, actionTag, contentEnd)
	}

	return steps
}

// actionEnd returns where an action's payload stops: at its close tag, or
// at the next action's open tag if that comes first, or at the end of body.
func actionEnd(body string, from int) int {
	end := len(body)
	if rel := strings.Index(body[from:], actionCloseTag); rel >= 0 {
		end = from + rel
	}
	if next := findOpenTag(body, actionTag, from); next >= 0 && next < end {
		end = next
	}
	return end
}

func actionStep(tag, payload string) (models.Step, bool) {
	payload = strings.TrimSpace(payload)

	switch actionType := attr(tag, "type"); actionType {
	case actionTypeFile:
		path := attr(tag, "filePath")
		if path == "" {
			logger.Debug("file action without filePath ignored")
			return models.Step{}, false
		}
		return models.Step{
			Type:  models.StepCreateFile,
			Title: "Create file " + path,
			Path:  path,
			Code:  payload,
		}, true
	case actionTypeShell:
		return models.Step{
			Type:    models.StepRunCommand,
			Title:   "Run command",
			Command: payload,
		}, true
	default:
		logger.Debug("unknown action type ignored", zap.String("type", actionType))
		return models.Step{}, false
	}
}

// findOpenTag finds "<name" starting at from, skipping longer tag names
// that merely share the prefix.
func findOpenTag(s, name string, from int) int {
	needle := "<" + name
	for from <= len(s) {
		rel := strings.Index(s[from:], needle)
		if rel < 0 {
			return -1
		}
		idx := from + rel
		after := idx + len(needle)
		if after == len(s) || strings.ContainsRune(" \t\r\n>/", rune(s[after])) {
			return idx
		}
		from = after
	}
	return -1
}

// readOpenTag returns the open tag starting at idx and the offset just past
// it. An open tag that never closes swallows the rest of s.
func readOpenTag(s string, idx int) (string, int) {
	rel := strings.IndexByte(s[idx:], '>')
	if rel < 0 {
		return s[idx:], len(s) + 1
	}
	return s[idx : idx+rel+1], idx + rel + 1
}

func attr(tag, name string) string {
	m := attrPatterns[name].FindStringSubmatch(tag)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}

func joinProse(parts ...string) string {
	var kept []string
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, "\n\n")
}
