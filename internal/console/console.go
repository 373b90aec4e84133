// Package console runs interview sessions in a line-oriented terminal.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pavelanni/interviewer/internal/catalog"
	appI18n "github.com/pavelanni/interviewer/internal/i18n"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/report"
	"github.com/pavelanni/interviewer/internal/session"
)

// QuitCommand abandons the running session when typed as an answer line.
const QuitCommand = "/quit"

// ErrInputClosed means the input ended before the session did.
var ErrInputClosed = errors.New("input closed")

// Runner drives one Coach from a reader and a writer.
type Runner struct {
	coach   *session.Coach
	catalog *catalog.Catalog
	in      *bufio.Reader
	out     io.Writer
	opts    report.Options
}

// New creates a Runner.
func New(coach *session.Coach, cat *catalog.Catalog, in io.Reader, out io.Writer, opts report.Options) *Runner {
	if cat == nil {
		cat = catalog.Default()
	}
	return &Runner{coach: coach, catalog: cat, in: bufio.NewReader(in), out: out, opts: opts}
}

// ChooseRole returns preset when set, otherwise asks the user to pick a role
// from the catalog or type their own.
func (r *Runner) ChooseRole(ctx context.Context, preset string) (model.Role, error) {
	if preset = strings.TrimSpace(preset); preset != "" {
		return model.Role(preset), nil
	}
	roles := r.catalog.Roles
	r.println(appI18n.T(ctx, "SelectRole"))
	for i, role := range roles {
		r.printf("  %2d. %s\n", i+1, role)
	}
	for {
		r.println(appI18n.Td(ctx, "RoleChoice", map[string]any{"Count": len(roles)}))
		line, err := r.readLine()
		line = strings.TrimSpace(line)
		if line == "" && err != nil {
			return "", ErrInputClosed
		}
		if n, convErr := strconv.Atoi(line); convErr == nil {
			if n >= 1 && n <= len(roles) {
				return roles[n-1], nil
			}
		} else if line != "" {
			return model.Role(line), nil
		}
		r.println(appI18n.T(ctx, "InvalidRoleChoice"))
	}
}

// Run plays a whole session of the given mode and prints its report. A
// /quit answer abandons the session and returns nil.
func (r *Runner) Run(ctx context.Context, role model.Role, mode model.Mode) error {
	data := map[string]any{"Role": string(role)}
	if mode == model.ModeConversational {
		r.println(appI18n.Td(ctx, "MockHeader", data))
		r.println(appI18n.T(ctx, "StartingInterview"))
	} else {
		r.println(appI18n.Td(ctx, "PracticeHeader", data))
		r.println(appI18n.T(ctx, "PreparingQuestions"))
	}

	h, err := r.coach.Start(ctx, role, mode)
	if err != nil {
		return err
	}
	snap, err := r.coach.Snapshot(h)
	if err != nil {
		return err
	}
	if snap.Greeting != "" {
		r.println("\n" + r.interviewer(ctx) + ": " + snap.Greeting)
	}

	for !snap.IsComplete {
		r.showPrompt(ctx, snap)
		answer, quit, err := r.readAnswer(ctx)
		if quit || err != nil {
			if abandonErr := r.coach.Abandon(ctx, h); abandonErr != nil {
				slog.Warn("failed to abandon session", "error", abandonErr)
			}
			if quit {
				r.println(appI18n.T(ctx, "SessionAbandoned"))
				return nil
			}
			return err
		}

		if mode != model.ModeConversational {
			r.println(appI18n.T(ctx, "Evaluating"))
		}
		next, err := r.coach.SubmitAnswer(ctx, h, answer)
		switch {
		case errors.Is(err, session.ErrEmptyAnswer):
			r.println(appI18n.T(ctx, "AnswerEmpty"))
			continue
		case errors.Is(err, session.ErrSubmission):
			r.println(appI18n.Td(ctx, "SubmissionFailed", map[string]any{"Error": err.Error()}))
			continue
		case err != nil:
			return err
		}
		r.showResult(ctx, snap, next)
		snap = next
	}

	return r.finish(ctx, h, snap)
}

func (r *Runner) finish(ctx context.Context, h session.Handle, snap model.SessionSnapshot) error {
	summary, err := r.coach.Finish(ctx, h)
	r.println("")
	if errors.Is(err, session.ErrEmptyResult) {
		return report.RenderTranscript(ctx, r.out, snap, r.opts)
	}
	if err != nil {
		return err
	}
	return report.RenderSummary(ctx, r.out, summary, r.opts)
}

func (r *Runner) showPrompt(ctx context.Context, snap model.SessionSnapshot) {
	q := snap.PendingPrompt
	if q == nil {
		return
	}
	r.println("")
	if snap.Mode == model.ModeConversational {
		r.println(r.interviewer(ctx) + ": " + q.Text)
	} else {
		header := appI18n.Td(ctx, "QuestionNofM", map[string]any{"N": len(snap.Turns) + 1, "Total": snap.PlannedCount})
		if q.Difficulty != "" {
			header += " [" + string(q.Difficulty) + "]"
		}
		r.println(header)
		r.println(q.Text)
		if q.Context != "" {
			r.println(appI18n.Td(ctx, "QuestionContext", map[string]any{"Context": q.Context}))
		}
	}
	r.println(appI18n.T(ctx, "AnswerPrompt"))
}

// showResult prints what the new turns added to the ledger.
func (r *Runner) showResult(ctx context.Context, prev, next model.SessionSnapshot) {
	for _, t := range next.Turns[len(prev.Turns):] {
		switch {
		case t.Evaluation != nil:
			if err := report.RenderEvaluation(ctx, r.out, *t.Evaluation, r.opts); err != nil {
				slog.Warn("failed to render evaluation", "error", err)
			}
		case t.TranscriptNote != "":
			r.println("\n" + r.interviewer(ctx) + ": " + t.TranscriptNote)
		}
	}
}

// readAnswer reads lines until an empty line or end of input. A line holding
// only QuitCommand ends the session.
func (r *Runner) readAnswer(ctx context.Context) (string, bool, error) {
	var lines []string
	for {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}
		line, err := r.readLine()
		trimmed := strings.TrimSpace(line)
		if trimmed == QuitCommand && len(lines) == 0 {
			return "", true, nil
		}
		if trimmed != "" {
			lines = append(lines, strings.TrimRight(line, " \t"))
		}
		if err != nil {
			if len(lines) == 0 {
				return "", false, ErrInputClosed
			}
			return strings.Join(lines, "\n"), false, nil
		}
		if trimmed == "" {
			return strings.Join(lines, "\n"), false, nil
		}
	}
}

// readLine returns the next line without its terminator. err is non-nil only
// at end of input; line may still hold a final unterminated line.
func (r *Runner) readLine() (string, error) {
	line, err := r.in.ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if err != nil && !errors.Is(err, io.EOF) {
		return line, fmt.Errorf("read input: %w", err)
	}
	return line, err
}

func (r *Runner) interviewer(ctx context.Context) string {
	return appI18n.T(ctx, "Interviewer")
}

func (r *Runner) println(s string) {
	fmt.Fprintln(r.out, s)
}

func (r *Runner) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}
