package console

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pavelanni/interviewer/internal/catalog"
	appI18n "github.com/pavelanni/interviewer/internal/i18n"
)

var headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))

// PrintRoles lists the catalog roles, one per line.
func PrintRoles(w io.Writer, cat *catalog.Catalog) error {
	var sb strings.Builder
	for _, role := range cat.Roles {
		sb.WriteString(string(role) + "\n")
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// PrintTips writes the interview guide: tip sections followed by the common
// questions.
func PrintTips(ctx context.Context, w io.Writer, cat *catalog.Catalog, noColor bool) error {
	heading := func(s string) string {
		if noColor {
			return s
		}
		return headingStyle.Render(s)
	}

	var sb strings.Builder
	sb.WriteString(heading(appI18n.T(ctx, "TipsTitle")) + "\n\n")
	for _, sec := range cat.Tips {
		sb.WriteString(heading(sec.Title) + "\n")
		for _, item := range sec.Items {
			sb.WriteString("  - " + item + "\n")
		}
		sb.WriteString("\n")
	}
	if len(cat.CommonQuestions) > 0 {
		sb.WriteString(heading(appI18n.T(ctx, "CommonQuestions")) + "\n")
		for i, q := range cat.CommonQuestions {
			sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, q))
		}
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
