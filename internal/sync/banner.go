package sync

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bolasblack/syncx/internal/incremental"
)

// bannerMaxPaths is the maximum number of conflict paths shown in the banner.
const bannerMaxPaths = 3

// RenderBanner writes a conflict warning banner to w. Colors are dropped
// when w is not a TTY. Nothing is written for an empty list.
func RenderBanner(conflicts []incremental.ConflictInfo, w io.Writer) {
	if len(conflicts) == 0 {
		return
	}

	r := lipgloss.NewRenderer(w)
	warn := r.NewStyle().Foreground(lipgloss.Color("3"))
	path := r.NewStyle().Bold(true).Width(30)
	faint := r.NewStyle().Faint(true)

	noun := "conflict"
	if len(conflicts) != 1 {
		noun = "conflicts"
	}

	lines := []string{"", warn.Render(fmt.Sprintf("⚠ %d sync %s need attention:", len(conflicts), noun))}
	for _, c := range conflicts[:min(len(conflicts), bannerMaxPaths)] {
		desc := faint.Render("(" + conflictDescription(c.LocalState, c.RemoteState) + ")")
		lines = append(lines, "  "+path.Render(DisplayPath(c.Path))+" "+desc)
	}
	if more := len(conflicts) - bannerMaxPaths; more > 0 {
		lines = append(lines, fmt.Sprintf("  ...and %d more", more))
	}
	lines = append(lines, warn.Render("Run 'syncx resolve' to resolve."), "")

	_, _ = io.WriteString(w, strings.Join(lines, "\n"))
}

// DisplayPath renders a conflict path, naming the root explicitly.
func DisplayPath(path string) string {
	if path == "" {
		return "(root)"
	}
	return path
}

func conflictDescription(localState, remoteState string) string {
	if localState == remoteState {
		return localState + " on both sides"
	}
	return localState + " locally, " + remoteState + " remotely"
}
