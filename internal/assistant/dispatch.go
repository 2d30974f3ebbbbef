package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"jarvis/internal/actions"
	"jarvis/internal/conversation"
	"jarvis/internal/core"
	"jarvis/internal/nlp"
)

// dispatch maps an intent onto an action and returns the reply to speak.
func (l *Loop) dispatch(ctx context.Context, intent nlp.Intent) (string, error) {
	mood := l.session.Conversation.CurrentMood
	switch intent.Category {
	case nlp.CategorySearch:
		return l.search(ctx, intent, mood)
	case nlp.CategoryLaunch:
		return l.launch(ctx, intent, mood)
	case nlp.CategoryStop:
		if intent.Target == "" {
			return l.unknown(mood), nil
		}
		name := actions.LaunchTaskName(intent.Target)
		cancelled, err := l.cancel(ctx, name)
		if err != nil {
			return "", err
		}
		if !cancelled {
			l.session.Logger.Info("stop requested for inactive task", "task", name)
		}
		return l.respond(conversation.CategoryAcknowledgments, "", mood, "Okay."), nil
	case nlp.CategoryStatus:
		return l.summary(mood), nil
	default:
		return l.unknown(mood), nil
	}
}

func (l *Loop) cancel(ctx context.Context, name string) (bool, error) {
	if l.deps.Canceller != nil {
		return l.deps.Canceller.Cancel(ctx, name)
	}
	return l.deps.Manager.CancelTask(name), nil
}

func (l *Loop) unknown(mood conversation.Mood) string {
	return l.respond(conversation.CategoryUnknownCommand, "", mood, "I'm not sure how to help with that.")
}

func (l *Loop) search(ctx context.Context, intent nlp.Intent, mood conversation.Mood) (string, error) {
	noResults := func() string {
		return l.respond(conversation.CategoryNoResults, "", mood, "I couldn't find anything about that.")
	}
	if l.deps.Searcher == nil {
		return noResults(), nil
	}
	results, err := l.deps.Searcher.Search(ctx, intent.Text)
	if err != nil {
		return "", fmt.Errorf("search: %w", err)
	}
	if len(results) == 0 {
		return noResults(), nil
	}
	return "I found this: " + results[0].Text, nil
}

func (l *Loop) launch(ctx context.Context, intent nlp.Intent, mood conversation.Mood) (string, error) {
	if intent.Target == "" || l.deps.Launcher == nil {
		return l.unknown(mood), nil
	}
	work, err := l.deps.Launcher.Work(intent.Target)
	if errors.Is(err, actions.ErrUnknownLauncher) {
		l.session.Logger.Info("no launcher for target", "target", intent.Target)
		return l.unknown(mood), nil
	}
	if err != nil {
		return "", err
	}
	name := actions.LaunchTaskName(intent.Target)
	if _, err := l.deps.Manager.Go(ctx, name, work); err != nil {
		if errors.Is(err, core.ErrTaskAlreadyRunning) {
			return l.respond(conversation.CategoryAlreadyRunning, "", mood, "That is already running."), nil
		}
		return "", err
	}
	return l.respond(conversation.CategorySuccess, "", mood, "Done."), nil
}

// summary describes active tasks and the next scheduled jobs.
func (l *Loop) summary(mood conversation.Mood) string {
	snap := l.deps.Manager.GetAllTasks()
	var b strings.Builder
	if prefix, err := l.deps.Responder.Response(conversation.CategoryStatus, "", mood); err == nil {
		b.WriteString(prefix)
		b.WriteString(" ")
	}
	if len(snap.Active) == 0 {
		b.WriteString("Nothing is running.")
	} else {
		names := make([]string, 0, len(snap.Active))
		for _, t := range snap.Active {
			names = append(names, t.Name)
		}
		fmt.Fprintf(&b, "%d running: %s.", len(names), strings.Join(names, ", "))
	}
	if len(snap.Scheduled) == 0 {
		b.WriteString(" No jobs scheduled.")
	} else {
		next := snap.Scheduled[0]
		fmt.Fprintf(&b, " %d scheduled, next is %s", len(snap.Scheduled), next.Name)
		if next.NextRunTime != nil {
			fmt.Fprintf(&b, " at %s", next.NextRunTime.Format("15:04"))
		}
		b.WriteString(".")
	}
	return b.String()
}
