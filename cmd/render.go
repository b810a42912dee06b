package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/guilhermegouw/storyloom/internal/events"
	"github.com/guilhermegouw/storyloom/internal/pubsub"
	"github.com/guilhermegouw/storyloom/internal/runner"
	"github.com/guilhermegouw/storyloom/internal/scheduler"
	"github.com/guilhermegouw/storyloom/internal/session"
	"github.com/guilhermegouw/storyloom/internal/ui"
)

const (
	renderWidth = 100
	timeLayout  = "2006-01-02 15:04"
)

func progressLabel(p scheduler.Progress) string {
	if p.Max == nil {
		return fmt.Sprintf("%d", p.Current)
	}
	return fmt.Sprintf("%d/%d", p.Current, *p.Max)
}

func kindLabel(s *session.Session) string {
	if s.Type == session.TypeChat {
		return fmt.Sprintf("%s (%s)", s.Type, s.ChatMode)
	}
	return string(s.Type)
}

func statusOf(s *session.Session) string {
	if s.Paused {
		return string(session.StatusPaused)
	}
	return string(s.Status)
}

// printHeader writes the summary block of a session.
func printHeader(w io.Writer, s *session.Session) {
	theme := ui.CurrentTheme()
	fmt.Fprintln(w, theme.Title(s.Title))
	fmt.Fprintf(w, "%s %s\n", theme.Muted("id:      "), s.ID)
	fmt.Fprintf(w, "%s %s\n", theme.Muted("type:    "), kindLabel(s))
	fmt.Fprintf(w, "%s %s\n", theme.Muted("status:  "), theme.Status(statusOf(s)))
	fmt.Fprintf(w, "%s %s\n", theme.Muted("cast:    "), strings.Join(s.ParticipantNames(), ", "))
	fmt.Fprintf(w, "%s %s\n", theme.Muted("progress:"), progressLabel(scheduler.ProgressOf(s)))
}

// printTranscript writes every message as plain styled text.
func printTranscript(w io.Writer, s *session.Session) {
	theme := ui.CurrentTheme()
	for _, m := range s.Messages {
		fmt.Fprintln(w)
		switch m.Kind {
		case session.KindSystem:
			fmt.Fprintln(w, theme.Muted(m.Content))
		case session.KindUser:
			fmt.Fprintf(w, "%s %s\n", theme.Speaker("You:"), m.Content)
		default:
			if s.Type == session.TypeChat && !s.IsMulti() && m.Speaker != "" {
				fmt.Fprintf(w, "%s %s\n", theme.Speaker(m.Speaker+":"), m.Content)
				continue
			}
			fmt.Fprintln(w, m.Content)
		}
	}
}

// transcriptMarkdown lays a session out as a markdown document.
func transcriptMarkdown(s *session.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", s.Title)
	if s.Scenario != "" {
		fmt.Fprintf(&b, "> %s\n\n", s.Scenario)
	}
	for i, m := range s.Messages {
		if i > 0 && s.Type == session.TypeStory {
			b.WriteString("---\n\n")
		}
		switch m.Kind {
		case session.KindSystem:
			fmt.Fprintf(&b, "*%s*\n\n", m.Content)
		case session.KindUser:
			fmt.Fprintf(&b, "**You:** %s\n\n", m.Content)
		default:
			if s.Type == session.TypeChat && !s.IsMulti() && m.Speaker != "" {
				fmt.Fprintf(&b, "**%s:** %s\n\n", m.Speaker, m.Content)
				continue
			}
			fmt.Fprintf(&b, "%s\n\n", m.Content)
		}
	}
	return b.String()
}

// formatRunEvent renders one run event as a progress line.
func formatRunEvent(ev events.RunEvent) string {
	theme := ui.CurrentTheme()
	switch ev.Type {
	case events.RunEventStarted:
		return theme.Muted("Generating...")
	case events.RunEventTurn:
		step := fmt.Sprintf("[%d]", ev.Turn)
		if ev.Max > 0 {
			step = fmt.Sprintf("[%d/%d]", ev.Turn, ev.Max)
		}
		line := fmt.Sprintf("  %s %s", step, theme.Speaker(ev.Speaker))
		return line + theme.Muted(fmt.Sprintf(" · %d words", ev.Words))
	case events.RunEventCompleted:
		return theme.Badge(fmt.Sprintf("Completed after %d turns.", ev.Turn), theme.Success)
	case events.RunEventPaused:
		return theme.Badge(fmt.Sprintf("Paused after %d turns.", ev.Turn), theme.Warning)
	case events.RunEventFailed:
		return theme.ErrorLine("Run failed:", fmt.Sprint(ev.Error))
	default:
		return string(ev.Type)
	}
}

// followRun prints the run events of sessionID until task finishes and
// returns the task outcome.
func followRun(ctx context.Context, w io.Writer, runs <-chan pubsub.Event[events.RunEvent], sessionID string, task *runner.Task) error {
	show := func(ev events.RunEvent) {
		if ev.SessionID == sessionID && ev.TaskID == task.ID {
			fmt.Fprintln(w, formatRunEvent(ev))
		}
	}

	for {
		select {
		case ev, ok := <-runs:
			if !ok {
				return task.Wait(ctx)
			}
			show(ev.Payload)
		case <-task.Done():
			// Events are published before the task finishes.
			for {
				select {
				case ev, ok := <-runs:
					if !ok {
						return task.Err()
					}
					show(ev.Payload)
				default:
					return task.Err()
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
