// Package notify composes and sends the run-report email the -r flag
// asks for: a plain-text summary of one closed session's subprocess
// tasks and the tracker's overall document outcome tally. No templating
// or mail-client library is available for this, so the report is built
// with text/template and delivered with net/smtp.
package notify

import (
	"fmt"
	"net/smtp"
	"sort"
	"strings"
	"text/template"

	"github.com/phenodcc/crawler/internal/model"
	"github.com/phenodcc/crawler/internal/tracker"
)

// sendFunc matches net/smtp.SendMail's signature so tests can swap in a
// fake transport without opening a real network connection.
var sendFunc = smtp.SendMail

const reportTemplate = `Crawling session {{.Session.UUID}}
started: {{.Session.Started}}
ended:   {{.EndedText}}
status:  {{.Session.Status}}

Subprocess tasks:
{{range .Tasks}}  {{.Phase}}: exit {{.ExitCode}} ({{.Comment}})
{{else}}  (none ran)
{{end}}
Document outcomes across the tracker:
{{range .StatusCounts}}  {{.Status}}: {{.Count}}
{{end}}`

type statusCount struct {
	Status model.Status
	Count  int
}

type reportData struct {
	Session      model.CrawlingSession
	Tasks        []model.SessionTask
	StatusCounts []statusCount
	EndedText    string
}

// Send builds the run report for sessionID and mails it from "from" to
// "to" through the SMTP relay at addr. addr is the host:port a local
// relay listens on; no auth is attempted, matching a trusted internal
// relay setup.
func Send(store *tracker.Store, sessionID int64, addr, from, to string) error {
	if to == "" {
		return nil
	}
	if addr == "" {
		return fmt.Errorf("notify: no SMTP address configured, cannot send report to %s", to)
	}

	body, err := buildReport(store, sessionID)
	if err != nil {
		return fmt.Errorf("notify: build report: %w", err)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		from, to, subjectFor(sessionID), body)

	host := addr
	if idx := strings.IndexByte(addr, ':'); idx >= 0 {
		host = addr[:idx]
	}
	if err := sendFunc(addr, nil, from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("notify: send to %s via %s: %w", to, host, err)
	}
	return nil
}

func subjectFor(sessionID int64) string {
	return fmt.Sprintf("phenodcc crawler: session %d report", sessionID)
}

func buildReport(store *tracker.Store, sessionID int64) (string, error) {
	sess, err := store.GetSession(sessionID)
	if err != nil {
		return "", fmt.Errorf("get session: %w", err)
	}
	tasks, err := store.ListSessionTasks(sessionID)
	if err != nil {
		return "", fmt.Errorf("list session tasks: %w", err)
	}
	counts, err := store.CountXmlFilesByStatus()
	if err != nil {
		return "", fmt.Errorf("count xml files: %w", err)
	}

	data := reportData{Session: sess, Tasks: tasks, EndedText: "still running"}
	if sess.Ended != nil {
		data.EndedText = sess.Ended.String()
	}
	for _, status := range model.Statuses {
		if n, ok := counts[status]; ok {
			data.StatusCounts = append(data.StatusCounts, statusCount{Status: status, Count: n})
		}
	}
	sort.Slice(data.StatusCounts, func(i, j int) bool { return data.StatusCounts[i].Status < data.StatusCounts[j].Status })

	tmpl, err := template.New("report").Parse(reportTemplate)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return buf.String(), nil
}
