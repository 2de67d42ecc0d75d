package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/vmunix/mediarelay/internal/job"
	"github.com/vmunix/mediarelay/internal/media"
	"github.com/vmunix/mediarelay/internal/upload"
)

var (
	okColor     = color.New(color.FgHiGreen)
	failColor   = color.New(color.FgHiRed, color.Bold)
	warnColor   = color.New(color.FgYellow)
	activeColor = color.New(color.FgCyan)
	dimColor    = color.New(color.FgWhite, color.Italic)
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func statusColor(s job.Status) *color.Color {
	switch {
	case s == job.StatusCompleted:
		return okColor
	case s == job.StatusFailed:
		return failColor
	case s == job.StatusCancelled:
		return warnColor
	case s.IsActive():
		return activeColor
	default:
		return dimColor
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func formatSize(b *int64) string {
	if b == nil {
		return "-"
	}
	return humanize.IBytes(uint64(*b))
}

func formatDuration(seconds *float64) string {
	if seconds == nil {
		return "-"
	}
	return (time.Duration(*seconds) * time.Second).String()
}

func printScrape(w io.Writer, r *ScrapeResponse) {
	fmt.Fprintf(w, "%s (%s) | %d item(s) in %s\n\n", r.URL, r.Domain, r.Count, r.ExtractionTime)
	if len(r.Media) == 0 {
		fmt.Fprintln(w, "No media found")
		return
	}
	printDescriptors(w, r.Media)
}

func printDescriptors(w io.Writer, items []media.Descriptor) {
	fmt.Fprintf(w, "  %-3s %-40s %-6s %-8s %-10s %-9s %s\n", "#", "TITLE", "KIND", "QUALITY", "SIZE", "DURATION", "EXTRACTOR")
	fmt.Fprintln(w, "  "+strings.Repeat("-", 90))
	for i, d := range items {
		fmt.Fprintf(w, "  %-3d %-40s %-6s %-8s %-10s %-9s %s\n",
			i+1, truncate(d.Title, 40), d.Kind, orDash(d.Quality),
			formatSize(d.FileSizeBytes), formatDuration(d.DurationSeconds), d.Extractor)
		if d.DirectURL != "" {
			dimColor.Fprintf(w, "      %s\n", d.DirectURL)
		}
	}
}

func printFormats(w io.Writer, r *FormatsResponse) {
	fmt.Fprintf(w, "%s | %d item(s)\n", r.URL, r.Count)
	for _, d := range r.Formats {
		fmt.Fprintf(w, "\n%s\n", d.Title)
		if len(d.Formats) == 0 {
			fmt.Fprintln(w, "  (no format list)")
			continue
		}
		fmt.Fprintf(w, "  %-12s %-6s %-10s %-8s %s\n", "ID", "EXT", "RES", "CODECS", "SIZE")
		for _, f := range d.Formats {
			res := "-"
			if f.Height > 0 {
				res = fmt.Sprintf("%dx%d", f.Width, f.Height)
			}
			codecs := strings.Trim(f.VCodec+"/"+f.ACodec, "/")
			size := "-"
			if f.FileSize > 0 {
				size = humanize.IBytes(uint64(f.FileSize))
			}
			fmt.Fprintf(w, "  %-12s %-6s %-10s %-8s %s\n", f.ID, orDash(f.Ext), res, orDash(codecs), size)
		}
	}
}

func printResult(w io.Writer, r *job.Result) {
	fmt.Fprintf(w, "Media:    %s [%s]\n", r.Media.Title, r.Media.Kind)
	fmt.Fprintf(w, "Source:   %s\n", r.Media.SourceURL)
	fmt.Fprintf(w, "Download: %s\n\n", r.Download.SizeFormatted)

	printUploads(w, r.Uploads, r.Failed)
	fmt.Fprintf(w, "\n%d succeeded, %d failed\n", r.TotalSuccess, r.TotalFailed)
}

func printUploads(w io.Writer, ok, failed []*upload.Result) {
	for _, u := range ok {
		okColor.Fprintf(w, "  OK   ")
		fmt.Fprintf(w, "%-12s %s\n", u.Backend, u.DownloadURL)
		if u.Expiry != "" {
			dimColor.Fprintf(w, "       expires %s\n", u.Expiry)
		}
	}
	for _, u := range failed {
		failColor.Fprintf(w, "  FAIL ")
		fmt.Fprintf(w, "%-12s %s\n", u.Backend, u.Error)
	}
}

func printJob(w io.Writer, j *job.Job) {
	fmt.Fprintf(w, "Job %s | ", j.ID)
	statusColor(j.Status).Fprintf(w, "%s", j.Status)
	fmt.Fprintf(w, " | %d%% | attempt %d/%d\n", j.Progress, j.Attempts, j.MaxAttempts)
	fmt.Fprintf(w, "  URL:     %s\n", j.Params.URL)
	fmt.Fprintf(w, "  Created: %s\n", humanize.Time(j.CreatedAt))
	if j.FinishedAt != nil {
		fmt.Fprintf(w, "  Done:    %s\n", humanize.Time(*j.FinishedAt))
	}
	if j.FailureReason != "" {
		failColor.Fprintf(w, "  Error:   %s\n", j.FailureReason)
	}
	if j.Result != nil {
		fmt.Fprintln(w)
		printResult(w, j.Result)
	}
}

func progressLine(j *job.Job) string {
	const width = 30
	filled := j.Progress * width / 100
	return fmt.Sprintf("[%s%s] %3d%% %s",
		strings.Repeat("#", filled), strings.Repeat(".", width-filled), j.Progress, j.Status)
}

func printEvents(w io.Writer, r *EventsResponse) {
	if r.Count == 0 {
		fmt.Fprintln(w, "No events")
		return
	}
	for _, e := range r.Events {
		fmt.Fprintf(w, "%s  ", e.OccurredAt.Local().Format("2006-01-02 15:04:05"))
		if r.JobID == "" {
			fmt.Fprintf(w, "%-36s  ", e.JobID)
		}
		fmt.Fprintf(w, "%-20s ", e.Type)
		if e.Status != "" {
			statusColor(e.Status).Fprintf(w, "%-12s", e.Status)
		} else {
			fmt.Fprintf(w, "%-12s", "")
		}
		fmt.Fprintf(w, " %3d%%", e.Progress)
		if e.Message != "" {
			dimColor.Fprintf(w, "  %s", e.Message)
		}
		fmt.Fprintln(w)
	}
}

func printStats(w io.Writer, s *StatsResponse) {
	fmt.Fprintf(w, "Jobs (%d total)\n", s.Total)
	for _, st := range job.Statuses {
		fmt.Fprintf(w, "  %-12s ", st)
		statusColor(st).Fprintf(w, "%d\n", s.Counts[st])
	}
}

func printProviders(w io.Writer, p *ProvidersResponse) {
	fmt.Fprintf(w, "Upload backends (%d):\n", p.Count)
	for _, b := range p.Providers {
		fmt.Fprintf(w, "  %-12s ", b.Name)
		if b.Available {
			okColor.Fprintln(w, "available")
		} else {
			failColor.Fprintln(w, "unreachable")
		}
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
