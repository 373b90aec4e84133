package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/interviewer/internal/model"
)

// Templates holds the built-in prompt set.
//
//go:embed templates/*.tmpl
var Templates embed.FS

const maxAnswerRunes = 10000

var (
	candidateAnswerRegex    = regexp.MustCompile(`(?i)</?\s*candidate-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// PromptVariant represents an evaluation prompt variant.
type PromptVariant string

const (
	// PromptStrict grades like a demanding hiring panel.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default evaluation variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient grades like a supportive coach.
	PromptLenient PromptVariant = "lenient"
)

var validVariants = map[PromptVariant]bool{
	PromptStrict:   true,
	PromptStandard: true,
	PromptLenient:  true,
}

var (
	loadOnce      sync.Once
	loadErr       error
	generateTmpl  *template.Template
	mockTmpl      *template.Template
	evalTemplates map[PromptVariant]*template.Template
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// GenerateData holds template data for question generation.
type GenerateData struct {
	Role       model.Role
	Count      int
	Difficulty model.Difficulty
}

// EvaluateData holds template data for answer evaluation.
type EvaluateData struct {
	Role         model.Role
	QuestionText string
	Context      string
	Answer       string
}

// TranscriptLine is one rendered line of a mock interview.
type TranscriptLine struct {
	Speaker string
	Content string
}

// MockData holds template data for a mock interview turn.
type MockData struct {
	Role       model.Role
	Transcript []TranscriptLine
	Answer     string
	Final      bool
}

// Load parses the prompt templates from fsys, which must contain the
// templates/ directory laid out like Templates.
// It uses sync.Once to ensure templates are loaded only once.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		parse := func(name string) (*template.Template, error) {
			file := "templates/" + name + ".tmpl"
			content, err := fs.ReadFile(fsys, file)
			if err != nil {
				return nil, fmt.Errorf("read prompt file %s: %w", file, err)
			}
			tmpl, err := template.New(name).Parse(string(content))
			if err != nil {
				return nil, fmt.Errorf("parse prompt template %s: %w", file, err)
			}
			return tmpl, nil
		}

		if generateTmpl, loadErr = parse("generate"); loadErr != nil {
			return
		}
		if mockTmpl, loadErr = parse("mock"); loadErr != nil {
			return
		}
		evalTemplates = make(map[PromptVariant]*template.Template)
		for _, v := range []PromptVariant{PromptStrict, PromptStandard, PromptLenient} {
			tmpl, err := parse("evaluate_" + string(v))
			if err != nil {
				loadErr = err
				return
			}
			evalTemplates[v] = tmpl
		}
	})
	return loadErr
}

func ready() error {
	if loadErr != nil {
		return fmt.Errorf("templates load failed: %w", loadErr)
	}
	if evalTemplates == nil {
		return errors.New("templates not initialized: call Load first")
	}
	return nil
}

// BuildGeneratePrompt builds the question generation prompt.
func BuildGeneratePrompt(role model.Role, count int, difficulty model.Difficulty) (string, error) {
	if err := ready(); err != nil {
		return "", err
	}
	return execute(generateTmpl, GenerateData{Role: role, Count: count, Difficulty: difficulty})
}

// BuildEvaluatePrompt builds an answer evaluation prompt using the specified variant.
func BuildEvaluatePrompt(variant PromptVariant, role model.Role, q model.Question, answer string) (string, error) {
	if err := ready(); err != nil {
		return "", err
	}
	tmpl, ok := evalTemplates[variant]
	if !ok {
		return "", errors.New("invalid prompt variant: " + string(variant))
	}
	return execute(tmpl, EvaluateData{
		Role:         role,
		QuestionText: q.Text,
		Context:      q.Context,
		Answer:       sanitizeAnswer(answer),
	})
}

// BuildMockPrompt builds the prompt for the next mock interview turn from the
// stored transcript. The latest candidate answer is the last candidate
// message; when final is set the model is asked for feedback only.
func BuildMockPrompt(role model.Role, transcript []model.TranscriptMessage, final bool) (string, error) {
	if err := ready(); err != nil {
		return "", err
	}
	last := -1
	for i, m := range transcript {
		if m.Speaker == model.SpeakerCandidate {
			last = i
		}
	}
	data := MockData{Role: role, Final: final}
	for i, m := range transcript {
		if i == last {
			data.Answer = sanitizeAnswer(m.Content)
			continue
		}
		data.Transcript = append(data.Transcript, transcriptLine(m))
	}
	if last < 0 {
		data.Answer = sanitizeAnswer("")
	}
	return execute(mockTmpl, data)
}

func transcriptLine(m model.TranscriptMessage) TranscriptLine {
	if m.Speaker == model.SpeakerCandidate {
		return TranscriptLine{Speaker: "Candidate", Content: sanitizeAnswer(m.Content)}
	}
	return TranscriptLine{Speaker: "Interviewer", Content: m.Content}
}

func execute(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func sanitizeAnswer(answer string) string {
	answer = candidateAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		runes = runes[:maxAnswerRunes]
		answer = string(runes) + "\n\n[Answer truncated due to length]"
	}

	return answer
}
