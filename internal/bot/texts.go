package bot

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"websum/internal/storage"
	"websum/internal/summarize"
	"websum/internal/task/queue"
	"websum/pkg/tgui"
)

const usageText = "Send me a web page URL and I will summarize it and commit the note to GitHub.\n\n" +
	"/summarize <url> [repo=owner/repo] [branch=name] [filename=name.md]\n" +
	"  [author_name=N] [author_email=E] [tags=a,b] [categories=c,d] [keywords=k1,k2]\n" +
	"/status  queue status of this chat\n" +
	"/history  last jobs of this chat"

func usageMessage(replyTo int) tgui.Message {
	return tgui.New().ReplyTo(replyTo).Title("📝", "WebSum to Git").Line(usageText).Build()
}

func errorMessage(replyTo int, err error) tgui.Message {
	return tgui.New().ReplyTo(replyTo).Line("⚠️ " + err.Error()).Line("").Line("Try /start for usage.").Build()
}

func queuedMessage(url string, position int) tgui.Message {
	b := tgui.New().Title("⏳", "Queued")
	if position > 0 {
		b.Line("#" + strconv.Itoa(position) + " in queue for this chat")
	}
	return b.HTML(tgui.Link("", url)).Build()
}

func runningMessage(url string) tgui.Message {
	return tgui.New().
		Title("🔄", "Processing").
		HTML(tgui.Link("", url)).
		Line("Fetching the page and asking the LLM, please wait…").
		Build()
}

func successMessage(res summarize.Result) tgui.Message {
	b := tgui.New().Title("✅", "Committed")
	if res.Title != "" {
		b.KV("Title", res.Title)
	}
	b.HTML(tgui.Raw("• "), tgui.B("Repo")+tgui.Raw(":"), tgui.Code(res.Repo+"@"+branchOrDefault(res.Branch)))
	b.HTML(tgui.Raw("• "), tgui.B("Path")+tgui.Raw(":"), tgui.Code(res.Path))
	if res.CommitURL != "" {
		b.HTML(tgui.Link("View commit", res.CommitURL))
	}
	return b.Build()
}

func failureMessage(err error) tgui.Message {
	return tgui.New().
		Title("❌", "Failed").
		Line(tgui.TruncRunes(tgui.OneLine(err.Error()), 500)).
		Build()
}

// rejectionMessage maps Enqueue errors to a retry-later text.
func rejectionMessage(err error, st queue.QueueStatus) tgui.Message {
	b := tgui.New().Title("🚫", "Not queued")
	switch {
	case errors.Is(err, queue.ErrChatQueueFull):
		b.Line(fmt.Sprintf("This chat already has %d pending jobs (limit %d). Please retry later.", st.ChatPending, st.MaxQueueSizePerChat))
	case errors.Is(err, queue.ErrGlobalQueueFull):
		b.Line("The bot is busy right now, the queue is full. Please retry later.")
	case errors.Is(err, queue.ErrClosed):
		b.Line("The bot is shutting down. Please retry in a moment.")
	default:
		b.Line("Could not queue the job: " + err.Error())
	}
	return b.Build()
}

func statusReport(replyTo int, st queue.QueueStatus) tgui.Message {
	return tgui.New().
		ReplyTo(replyTo).
		Title("📊", "Queue status").
		KV("Running", fmt.Sprintf("%d/%d (this chat: %d)", st.GlobalRunning, st.MaxConcurrentJobs, st.ChatRunning)).
		KV("Pending", fmt.Sprintf("%d/%d (this chat: %d/%d)", st.GlobalPending, st.MaxQueueSize, st.ChatPending, st.MaxQueueSizePerChat)).
		Build()
}

func historyReport(replyTo int, recs []storage.JobRecord) tgui.Message {
	b := tgui.New().ReplyTo(replyTo).Title("🗂", "Recent jobs")
	if len(recs) == 0 {
		return b.Line("No jobs yet.").Build()
	}
	for _, r := range recs {
		mark := "✅"
		if r.Status != storage.StatusSucceeded {
			mark = "❌"
		}
		line := []tgui.H{
			tgui.Esc(mark),
			tgui.Code(r.FinishedAt.UTC().Format(time.DateTime)),
			tgui.Link(tgui.TruncRunes(r.URL, 60), r.URL),
		}
		switch {
		case r.Status == storage.StatusSucceeded && r.CommitURL != "":
			line = append(line, tgui.Raw("→"), tgui.Link(r.Path, r.CommitURL))
		case r.Status == storage.StatusSucceeded:
			line = append(line, tgui.Raw("→"), tgui.Code(r.Path))
		default:
			line = append(line, tgui.I(tgui.TruncRunes(tgui.OneLine(r.Error), 120)))
		}
		b.HTML(line...)
	}
	return b.Build()
}

func historyDisabledMessage(replyTo int) tgui.Message {
	return tgui.New().ReplyTo(replyTo).Line("Job history is disabled on this bot.").Build()
}

func unknownCommandMessage(replyTo int, name string) tgui.Message {
	return tgui.New().ReplyTo(replyTo).Line("Unknown command /" + name + ". Try /start.").Build()
}

func noURLMessage(replyTo int) tgui.Message {
	return tgui.New().ReplyTo(replyTo).Line("No http/https URL found. Send a message containing a web page address.").Build()
}

func branchOrDefault(b string) string {
	if b == "" {
		return "default"
	}
	return b
}
