// internal/app/formatter.go
package app

import (
	"fmt"
	"net/url"
	"strings"

	"youtrack_notification_bot/internal/domain/issue"
)

// LinkStyle selects how links are rendered in chat markup.
type LinkStyle string

const (
	LinkStyleMarkdown LinkStyle = "markdown" // [label](url)
	LinkStyleSlack    LinkStyle = "slack"    // <url|label>
)

const (
	NoTicketMessage = "No ticket!"
	creationLayout  = "Mon 02 Jan 2006"
	boldPlaceholder = "\x00\x00"
)

// Formatter renders issues and statistics as chat messages.
type Formatter struct {
	BaseURL   string
	LinkStyle LinkStyle
}

func NewFormatter(baseURL string, style LinkStyle) *Formatter {
	if style == "" {
		style = LinkStyleMarkdown
	}
	return &Formatter{BaseURL: strings.TrimRight(baseURL, "/"), LinkStyle: style}
}

func (f *Formatter) link(target, label string) string {
	if f.LinkStyle == LinkStyleSlack {
		return "<" + target + "|" + label + ">"
	}
	return "[" + label + "](" + target + ")"
}

// QueryLink links label to the tracker's search page for query.
func (f *Formatter) QueryLink(query, label string) string {
	escaped := strings.ReplaceAll(url.QueryEscape(query), "+", "%20")
	return f.link(f.BaseURL+"/issues?u=1&q="+escaped, label)
}

// FormatIssue renders one issue on a single line (plus the reporter line when shown).
func (f *Formatter) FormatIssue(is issue.Issue, showReporter, showCreationDate bool) string {
	var b strings.Builder
	if showCreationDate {
		b.WriteString("[" + is.CreatedAt().Format(creationLayout) + "] - ")
	}
	b.WriteString(f.link(f.BaseURL+"/issue/"+is.IDReadable, is.IDReadable))
	b.WriteString(" - " + is.Summary)
	for _, tag := range is.Tags {
		b.WriteString(" `" + tag.Name + "`")
	}
	if showReporter {
		b.WriteString("\nFrom : " + is.Reporter.Email)
	}
	return convertMarkup(b.String())
}

// convertMarkup rewrites tracker markdown into chat markup. The order matters:
// bold pairs are parked before single asterisks become italics.
func convertMarkup(s string) string {
	s = strings.ReplaceAll(s, "**", boldPlaceholder)
	s = strings.ReplaceAll(s, "*", "_")
	s = strings.ReplaceAll(s, boldPlaceholder, "*")
	s = strings.ReplaceAll(s, "##", "*")
	s = strings.ReplaceAll(s, `\[`, "[")
	s = strings.ReplaceAll(s, `\]`, "]")
	return s
}

// FormatDigest renders the digest of issues, with creation dates and without reporters.
func (f *Formatter) FormatDigest(issues []issue.Issue) string {
	if len(issues) == 0 {
		return NoTicketMessage
	}
	var b strings.Builder
	b.WriteString("Digest:\n")
	for _, is := range issues {
		b.WriteString("\n - " + f.FormatIssue(is, false, true))
	}
	return b.String()
}

// TagCount is the number of issues carrying a tag.
type TagCount struct {
	Name  string
	Count int
}

// CountByTag counts tag occurrences across issues, in first-seen tag order.
func CountByTag(issues []issue.Issue) []TagCount {
	var counts []TagCount
	index := make(map[string]int)
	for _, is := range issues {
		for _, tag := range is.Tags {
			i, ok := index[tag.Name]
			if !ok {
				i = len(counts)
				index[tag.Name] = i
				counts = append(counts, TagCount{Name: tag.Name})
			}
			counts[i].Count++
		}
	}
	return counts
}

// QueryCount is the result size of a query, kept with the query for linking.
type QueryCount struct {
	Query string
	Count int
}

// StatsReport carries everything FormatStats renders.
type StatsReport struct {
	Period            string
	Created           QueryCount // unresolved + resolved among created in period
	Unresolved        QueryCount
	UnresolvedByTag   []TagCount
	Resolved          QueryCount // created and resolved in period
	ResolvedPrevious  QueryCount // resolved in period, created earlier
	AllTimeUnresolved QueryCount
}

// FormatStats renders a stats report; every count links to its query.
func (f *Formatter) FormatStats(r StatsReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Stats for period _%s_:\n", r.Period)
	fmt.Fprintf(&b, " 🛎️ %s have been created.\n",
		f.QueryLink(r.Created.Query, fmt.Sprintf("%d tickets", r.Created.Count)))
	fmt.Fprintf(&b, " 🏗️ %s are still opened.",
		f.QueryLink(r.Unresolved.Query, fmt.Sprintf("%d tickets", r.Unresolved.Count)))
	for _, tc := range r.UnresolvedByTag {
		fmt.Fprintf(&b, "\n  - %d tickets `%s` ", tc.Count, tc.Name)
	}
	fmt.Fprintf(&b, "\n ✅ %s among created have been closed + %s from previous creation period.",
		f.QueryLink(r.Resolved.Query, fmt.Sprintf("%d tickets", r.Resolved.Count)),
		f.QueryLink(r.ResolvedPrevious.Query, fmt.Sprintf("%d tickets", r.ResolvedPrevious.Count)))
	fmt.Fprintf(&b, "\n 🧮 %s all time unresolved tickets.",
		f.QueryLink(r.AllTimeUnresolved.Query, fmt.Sprintf("%d", r.AllTimeUnresolved.Count)))
	return b.String()
}
