// Package report renders a RunResult as a Markdown or sanitized HTML page.
package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/repoforge/apb/internal/domain/model"
)

var (
	mdRenderer    goldmark.Markdown
	htmlSanitizer *bluemonday.Policy
)

func init() {
	mdRenderer = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)

	htmlSanitizer = bluemonday.UGCPolicy()
}

// Markdown renders a run result as a GitHub-flavored Markdown status page.
func Markdown(result model.RunResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Rebuild dispatch report\n\n")
	fmt.Fprintf(&b, "Ran at %s for query `%s` (workflow `%s`, threshold %s).\n\n",
		result.RanAt.Format("2006-01-02 15:04:05 UTC"), result.Query, result.WorkflowID, result.BuildAge)
	fmt.Fprintf(&b, "Sent **%d** `%s` event(s); examined %d repositories.\n\n",
		result.Dispatched, result.EventType, result.Examined)

	if len(result.Decisions) == 0 {
		b.WriteString("No repositories matched the query.\n")
		return b.String()
	}

	b.WriteString("| Repository | Last build | Outcome | Reason | Event sent |\n")
	b.WriteString("| --- | --- | --- | --- | --- |\n")

	for _, d := range result.Decisions {
		lastBuild := "never"
		if d.LastRunAt != nil {
			lastBuild = humanize.RelTime(*d.LastRunAt, result.RanAt, "ago", "from now")
		}

		outcome := d.LastOutcome
		if outcome == "" {
			outcome = "-"
		}

		sent := "no"
		if d.EventSent {
			sent = "yes"
		}
		if d.Error != "" {
			sent = fmt.Sprintf("failed: %s", d.Error)
		}

		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			d.Repository, lastBuild, outcome, string(d.Reason), sent)
	}

	return b.String()
}

// HTML renders a run result as sanitized HTML, for publishing the status page
// somewhere that does not render Markdown.
func HTML(result model.RunResult) (string, error) {
	md := Markdown(result)

	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}

	return htmlSanitizer.Sanitize(buf.String()), nil
}
