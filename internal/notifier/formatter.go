package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"TradingAssistant/internal/model"
)

const (
	appName    = "Trading Assistant"
	timeLayout = "2006-01-02 15:04:05"

	// recentExecutions is how many of today's executions the summary lists.
	recentExecutions = 3
)

// Message is one rendered notification. HTML is a full document for email;
// Text uses the subset of HTML accepted by Telegram.
type Message struct {
	Subject string
	HTML    string
	Text    string
}

// Formatter renders task lifecycle events.
type Formatter struct {
	Location *time.Location
	Now      func() time.Time
}

// NewFormatter creates a Formatter that stamps messages in loc.
func NewFormatter(loc *time.Location) Formatter {
	if loc == nil {
		loc = time.Local
	}
	return Formatter{Location: loc, Now: time.Now}
}

func (f Formatter) now() time.Time {
	return f.Now().In(f.Location)
}

// TaskStarted formats the "task started" notice.
func (f Formatter) TaskStarted(name, id string) Message {
	ts := f.now().Format(timeLayout)
	fields := [][2]string{
		{"Task", name},
		{"Task ID", id},
		{"Start Time", ts},
		{"Status", "🟡 Running"},
	}
	return Message{
		Subject: fmt.Sprintf("🚀 %s: %s Started", appName, name),
		HTML:    document("Task Started", fields, ""),
		Text:    telegram(fmt.Sprintf("🚀 %s Started", name), fields, ""),
	}
}

// TaskCompleted formats the success notice with the run summary.
func (f Formatter) TaskCompleted(name, id string, res *model.TaskResult, duration time.Duration) Message {
	ts := f.now().Format(timeLayout)
	fields := [][2]string{
		{"Task", name},
		{"Task ID", id},
		{"Completion Time", ts},
		{"Duration", fmt.Sprintf("%.1f seconds", duration.Seconds())},
		{"Status", "🟢 Success"},
	}

	var results [][2]string
	if res != nil {
		date := res.Date
		if date == "" {
			date = "Unknown"
		}
		results = append(results,
			[2]string{"Date processed", date},
			[2]string{"Tickers processed", fmt.Sprint(res.TickersProcessed)},
			[2]string{"Status", res.Status},
		)
		if res.DaysProcessed > 0 {
			results = append(results, [2]string{"Days processed", fmt.Sprintf("%d (%s to %s)", res.DaysProcessed, res.StartDate, res.EndDate)})
		}
		if res.Failed > 0 {
			results = append(results, [2]string{"Failed fetches", fmt.Sprintf("%d of %d", res.Failed, len(res.Items))})
		}
	}

	var h, t strings.Builder
	if len(results) > 0 {
		h.WriteString("<h3>Results:</h3>\n<ul>\n")
		t.WriteString("\n<b>Results:</b>\n")
		for _, r := range results {
			fmt.Fprintf(&h, "<li>%s: %s</li>\n", r[0], html.EscapeString(r[1]))
			fmt.Fprintf(&t, "• %s: %s\n", r[0], html.EscapeString(r[1]))
		}
		h.WriteString("</ul>\n")
		for _, item := range failedItems(res) {
			fmt.Fprintf(&t, "  ✗ %s %s: %s\n", item.Kind, item.Ticker, html.EscapeString(item.Error))
		}
	}

	return Message{
		Subject: fmt.Sprintf("✅ %s: %s Completed", appName, name),
		HTML:    document("Task Completed Successfully", fields, h.String()),
		Text:    telegram(fmt.Sprintf("✅ %s Completed", name), fields, t.String()),
	}
}

// TaskFailed formats the failure notice with the error text.
func (f Formatter) TaskFailed(name, id, errMsg string) Message {
	ts := f.now().Format(timeLayout)
	fields := [][2]string{
		{"Task", name},
		{"Task ID", id},
		{"Failure Time", ts},
		{"Status", "🔴 Failed"},
	}
	escaped := html.EscapeString(errMsg)
	return Message{
		Subject: fmt.Sprintf("❌ %s: %s Failed", appName, name),
		HTML: document("Task Failed", fields,
			"<h3>Error Details:</h3>\n<pre style=\"background-color: #f5f5f5; padding: 10px; border-radius: 5px;\">"+escaped+"</pre>\n"),
		Text: telegram(fmt.Sprintf("❌ %s Failed", name), fields, "\n<pre>"+escaped+"</pre>"),
	}
}

// DailySummary counts today's executions and errors and lists the last few
// executions. Records from other days are ignored.
func (f Formatter) DailySummary(executions []model.Execution, errs []model.TaskError) Message {
	now := f.now()
	today := now.Format(model.DateLayout)

	var todayExecs []model.Execution
	for _, e := range executions {
		if e.Timestamp.In(f.Location).Format(model.DateLayout) == today {
			todayExecs = append(todayExecs, e)
		}
	}
	errCount := 0
	for _, e := range errs {
		if e.Timestamp.In(f.Location).Format(model.DateLayout) == today {
			errCount++
		}
	}

	recent := todayExecs
	if len(recent) > recentExecutions {
		recent = recent[len(recent)-recentExecutions:]
	}

	fields := [][2]string{{"Date", today}}

	var h, t strings.Builder
	h.WriteString("<h3>Today's Activity:</h3>\n<ul>\n")
	fmt.Fprintf(&h, "<li>✅ Successful executions: %d</li>\n", len(todayExecs))
	fmt.Fprintf(&h, "<li>❌ Errors: %d</li>\n", errCount)
	h.WriteString("</ul>\n<h3>Recent Executions:</h3>\n<ul>\n")

	fmt.Fprintf(&t, "\n✅ Successful executions: %d\n❌ Errors: %d\n", len(todayExecs), errCount)
	if len(recent) > 0 {
		t.WriteString("\n<b>Recent Executions:</b>\n")
	}
	for _, e := range recent {
		line := fmt.Sprintf("%s - %d tickers processed (%.1fs)",
			e.Timestamp.In(f.Location).Format(timeLayout), e.Result.TickersProcessed, e.Result.DurationSeconds)
		fmt.Fprintf(&h, "<li>%s</li>\n", line)
		fmt.Fprintf(&t, "• %s\n", line)
	}
	h.WriteString("</ul>\n")

	return Message{
		Subject: fmt.Sprintf("📊 %s: Daily Summary - %s", appName, today),
		HTML:    document("Daily Task Summary", fields, h.String()),
		Text:    telegram("📊 Daily Summary", fields, t.String()),
	}
}

func failedItems(res *model.TaskResult) []model.ItemResult {
	if res == nil {
		return nil
	}
	var out []model.ItemResult
	for _, item := range res.Items {
		if !item.OK {
			out = append(out, item)
		}
	}
	return out
}

func document(title string, fields [][2]string, extra string) string {
	var b strings.Builder
	b.WriteString("<html>\n<body>\n")
	fmt.Fprintf(&b, "<h2>%s</h2>\n", title)
	for _, fv := range fields {
		fmt.Fprintf(&b, "<p><strong>%s:</strong> %s</p>\n", fv[0], html.EscapeString(fv[1]))
	}
	b.WriteString(extra)
	b.WriteString("</body>\n</html>\n")
	return b.String()
}

func telegram(title string, fields [][2]string, extra string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n\n", html.EscapeString(title))
	for _, fv := range fields {
		fmt.Fprintf(&b, "%s: %s\n", fv[0], html.EscapeString(fv[1]))
	}
	b.WriteString(extra)
	return b.String()
}
