package report

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	appI18n "github.com/pavelanni/interviewer/internal/i18n"
	"github.com/pavelanni/interviewer/internal/model"
)

var (
	colorGreen  = lipgloss.Color("34")
	colorYellow = lipgloss.Color("178")
	colorRed    = lipgloss.Color("160")
	colorTitle  = lipgloss.Color("99")
	colorMuted  = lipgloss.Color("244")
)

// Options controls terminal rendering.
type Options struct {
	NoColor bool
}

// TierLabel returns the localized name of a tier.
func TierLabel(ctx context.Context, tier model.Tier) string {
	switch tier {
	case model.TierExcellent:
		return appI18n.T(ctx, "TierExcellent")
	case model.TierGood:
		return appI18n.T(ctx, "TierGood")
	default:
		return appI18n.T(ctx, "TierNeedsImprovement")
	}
}

// RenderSummary writes the results page of a practice session.
func RenderSummary(ctx context.Context, w io.Writer, s model.Summary, opts Options) error {
	var sb strings.Builder

	sb.WriteString(stylize(appI18n.T(ctx, "InterviewComplete"), opts.NoColor, colorTitle, true) + "\n")
	sb.WriteString(appI18n.Td(ctx, "PracticeSessionTitle", map[string]any{"Role": string(s.Role)}) + "\n\n")

	tierColor := bandColor(s.Tier)
	sb.WriteString(fmt.Sprintf("%s: %s  %s: %s  %s\n\n",
		appI18n.T(ctx, "AverageScore"),
		stylize(fmt.Sprintf("%.1f", s.AverageScore), opts.NoColor, tierColor, true),
		appI18n.T(ctx, "Percentage"),
		stylize(fmt.Sprintf("%.0f%%", s.Percentage), opts.NoColor, tierColor, false),
		stylize(TierLabel(ctx, s.Tier), opts.NoColor, tierColor, true),
	))

	for i, ts := range s.PerTurn {
		writeScoredTurn(ctx, &sb, i+1, ts, opts)
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// RenderEvaluation writes the immediate feedback for one answer.
func RenderEvaluation(ctx context.Context, w io.Writer, ev model.Evaluation, opts Options) error {
	var sb strings.Builder
	writeEvaluation(ctx, &sb, ev, opts)
	_, err := io.WriteString(w, sb.String())
	return err
}

// RenderTranscript writes a mock interview as a conversation.
func RenderTranscript(ctx context.Context, w io.Writer, snap model.SessionSnapshot, opts Options) error {
	var sb strings.Builder
	interviewer := stylize(appI18n.T(ctx, "Interviewer"), opts.NoColor, colorTitle, true)
	candidate := stylize(appI18n.T(ctx, "Candidate"), opts.NoColor, colorGreen, true)

	sb.WriteString(stylize(appI18n.Td(ctx, "MockSessionTitle", map[string]any{"Role": string(snap.Role)}), opts.NoColor, colorTitle, true) + "\n\n")
	if snap.Greeting != "" {
		sb.WriteString(interviewer + ": " + snap.Greeting + "\n")
	}
	for _, t := range snap.Turns {
		if t.Question.Text != "" {
			sb.WriteString(interviewer + ": " + t.Question.Text + "\n")
		}
		if t.Answer != "" {
			sb.WriteString(candidate + ": " + t.Answer + "\n")
		}
		if t.TranscriptNote != "" {
			sb.WriteString(interviewer + ": " + t.TranscriptNote + "\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString(stylize(appI18n.Tp(ctx, "QuestionsAnswered", snap.AnsweredCount()), opts.NoColor, colorMuted, false) + "\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

func writeScoredTurn(ctx context.Context, sb *strings.Builder, n int, ts model.TurnScore, opts Options) {
	q := ts.Turn.Question
	header := fmt.Sprintf("%d. [%s] %s", n, difficultyLabel(q.Difficulty), q.Text)
	sb.WriteString(stylize(header, opts.NoColor, colorTitle, true) + "\n")
	sb.WriteString(stylize(appI18n.T(ctx, "YourAnswer")+": ", opts.NoColor, colorMuted, false) + ts.Turn.Answer + "\n")
	if ts.Turn.Evaluation != nil {
		writeEvaluation(ctx, sb, *ts.Turn.Evaluation, opts)
	}
	sb.WriteString("\n")
}

func writeEvaluation(ctx context.Context, sb *strings.Builder, ev model.Evaluation, opts Options) {
	score := appI18n.Td(ctx, "ScoreLine", map[string]any{"Score": formatScore(ev.Score)})
	sb.WriteString(stylize(score, opts.NoColor, bandColor(ScoreBand(ev.Score)), true) + "\n")
	if ev.Feedback != "" {
		sb.WriteString(appI18n.T(ctx, "Feedback") + ": " + ev.Feedback + "\n")
	}
	writeList(sb, appI18n.T(ctx, "Strengths"), "+", ev.Strengths)
	writeList(sb, appI18n.T(ctx, "Improvements"), "-", ev.Improvements)
}

func writeList(sb *strings.Builder, title, bullet string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString(title + ":\n")
	for _, it := range items {
		sb.WriteString("  " + bullet + " " + it + "\n")
	}
}

func difficultyLabel(d model.Difficulty) string {
	if d == "" {
		d = model.DifficultyMedium
	}
	s := string(d)
	return strings.ToUpper(s[:1]) + s[1:]
}

func formatScore(score float64) string {
	if score == float64(int(score)) {
		return fmt.Sprintf("%d", int(score))
	}
	return fmt.Sprintf("%.1f", score)
}

func bandColor(t model.Tier) lipgloss.Color {
	switch t {
	case model.TierExcellent:
		return colorGreen
	case model.TierGood:
		return colorYellow
	default:
		return colorRed
	}
}

func stylize(text string, noColor bool, color lipgloss.Color, bold bool) string {
	if noColor {
		return text
	}
	return lipgloss.NewStyle().Foreground(color).Bold(bold).Render(text)
}
