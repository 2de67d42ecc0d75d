package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vmunix/mediarelay/internal/job"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape <url>",
	Short: "Extract media descriptors from a page",
	Args:  cobra.ExactArgs(1),
	RunE:  runScrapeCmd,
}

var formatsCmd = &cobra.Command{
	Use:   "formats <url>",
	Short: "List available formats for a page",
	Args:  cobra.ExactArgs(1),
	RunE:  runFormatsCmd,
}

var quickCmd = &cobra.Command{
	Use:   "quick <url>",
	Short: "Extract, download and upload in one synchronous request",
	Long: `Run the whole pipeline synchronously and print the hosted links.

Without --provider the first backend that accepts the file wins.

Examples:
  mediarelay quick https://example.com/watch/1
  mediarelay quick --audio --provider catbox https://example.com/watch/1`,
	Args: cobra.ExactArgs(1),
	RunE: runQuickCmd,
}

var submitCmd = &cobra.Command{
	Use:   "submit <url>",
	Short: "Queue an extract-and-upload job",
	Long: `Queue a job and print its id. Use --watch to follow it to completion.

Examples:
  mediarelay submit https://example.com/watch/1
  mediarelay submit --mode first --providers pixeldrain,catbox https://example.com/v
  mediarelay submit --mode specific --provider gofile --watch https://example.com/v`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmitCmd,
}

var jobCmd = &cobra.Command{
	Use:   "job <id>",
	Short: "Show a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobCmd,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancelCmd,
}

var eventsCmd = &cobra.Command{
	Use:   "events [job-id]",
	Short: "Show a job's event history, or the newest events across all jobs",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runEventsCmd,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job counts per status",
	Args:  cobra.NoArgs,
	RunE:  runStatsCmd,
}

var backendsCmd = &cobra.Command{
	Use:     "backends",
	Aliases: []string{"providers"},
	Short:   "List upload backends and whether they are reachable",
	Args:    cobra.NoArgs,
	RunE:    runBackendsCmd,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the server is up",
	Args:  cobra.NoArgs,
	RunE:  runHealthCmd,
}

func init() {
	for _, c := range []*cobra.Command{scrapeCmd, quickCmd, submitCmd} {
		c.Flags().StringP("extractor", "e", "", "Extraction strategy (auto, tool, browser, direct)")
		c.Flags().BoolP("audio", "a", false, "Audio only")
	}
	quickCmd.Flags().StringP("provider", "p", "", "Upload to this backend only")

	submitCmd.Flags().StringP("mode", "m", "", "Upload mode (all, first, specific)")
	submitCmd.Flags().StringSlice("providers", nil, "Backends to consider")
	submitCmd.Flags().StringP("provider", "p", "", "Backend for specific mode")
	submitCmd.Flags().String("format", "", "yt-dlp format selector")
	submitCmd.Flags().String("quality", "", "Preferred quality")
	submitCmd.Flags().String("id", "", "Job id (generated when empty)")
	submitCmd.Flags().BoolP("watch", "w", false, "Follow the job until it finishes")

	jobCmd.Flags().BoolP("watch", "w", false, "Follow the job until it finishes")
	jobCmd.Flags().Duration("interval", 2*time.Second, "Poll interval for --watch")
	submitCmd.Flags().Duration("interval", 2*time.Second, "Poll interval for --watch")

	eventsCmd.Flags().IntP("limit", "n", 50, "Number of events when no job is given")

	rootCmd.AddCommand(scrapeCmd, formatsCmd, quickCmd, submitCmd, jobCmd, cancelCmd, eventsCmd, statsCmd, backendsCmd, healthCmd)
}

func runScrapeCmd(cmd *cobra.Command, args []string) error {
	extractor, _ := cmd.Flags().GetString("extractor")
	audio, _ := cmd.Flags().GetBool("audio")

	res, err := newClient().Scrape(commandContext(cmd), ScrapeRequest{URL: args[0], Extractor: extractor, AudioOnly: audio})
	if err != nil {
		return fmt.Errorf("scrape failed: %w", err)
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), res)
	}
	printScrape(cmd.OutOrStdout(), res)
	return nil
}

func runFormatsCmd(cmd *cobra.Command, args []string) error {
	res, err := newClient().Formats(commandContext(cmd), args[0])
	if err != nil {
		return fmt.Errorf("formats failed: %w", err)
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), res)
	}
	printFormats(cmd.OutOrStdout(), res)
	return nil
}

func runQuickCmd(cmd *cobra.Command, args []string) error {
	extractor, _ := cmd.Flags().GetString("extractor")
	audio, _ := cmd.Flags().GetBool("audio")
	provider, _ := cmd.Flags().GetString("provider")

	res, err := newClient().Quick(commandContext(cmd), QuickRequest{
		URL:       args[0],
		Extractor: extractor,
		AudioOnly: audio,
		Provider:  provider,
	})
	if err != nil {
		return fmt.Errorf("quick failed: %w", err)
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), res)
	}
	printResult(cmd.OutOrStdout(), &res.Result)
	fmt.Fprintf(cmd.OutOrStdout(), "Processed in %s\n", res.ProcessingTime)
	return nil
}

func runSubmitCmd(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	req := ExtractRequest{URL: args[0]}
	req.Extractor, _ = f.GetString("extractor")
	req.AudioOnly, _ = f.GetBool("audio")
	req.UploadMode, _ = f.GetString("mode")
	req.Providers, _ = f.GetStringSlice("providers")
	req.Provider, _ = f.GetString("provider")
	req.Format, _ = f.GetString("format")
	req.Quality, _ = f.GetString("quality")
	req.JobID, _ = f.GetString("id")
	watch, _ := f.GetBool("watch")
	interval, _ := f.GetDuration("interval")

	if req.Provider != "" && req.UploadMode == "" {
		req.UploadMode = "specific"
	}

	client := newClient()
	ctx := commandContext(cmd)
	res, err := client.Submit(ctx, req)
	if err != nil {
		return fmt.Errorf("submit failed: %w", err)
	}

	if !watch {
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Queued job %s (%s)\n", res.JobID, res.Status)
		return nil
	}
	return watchJob(ctx, cmd, client, res.JobID, interval)
}

func runJobCmd(cmd *cobra.Command, args []string) error {
	watch, _ := cmd.Flags().GetBool("watch")
	interval, _ := cmd.Flags().GetDuration("interval")

	client := newClient()
	ctx := commandContext(cmd)
	if watch {
		return watchJob(ctx, cmd, client, args[0], interval)
	}

	j, err := client.Job(ctx, args[0])
	if err != nil {
		return fmt.Errorf("job lookup failed: %w", err)
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), j)
	}
	printJob(cmd.OutOrStdout(), j)
	return nil
}

// watchJob polls until the job reaches a terminal status, printing a
// progress line whenever the status or progress changes. A failed or
// cancelled job is reported as an error.
func watchJob(ctx context.Context, cmd *cobra.Command, client *Client, id string, interval time.Duration) error {
	out := cmd.OutOrStdout()
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last string
	for {
		j, err := client.Job(ctx, id)
		if err != nil {
			return fmt.Errorf("job lookup failed: %w", err)
		}
		if !jsonOutput {
			if line := progressLine(j); line != last {
				fmt.Fprintln(out, line)
				last = line
			}
		}

		if j.Status.IsTerminal() {
			if jsonOutput {
				if err := printJSON(out, j); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(out)
				printJob(out, j)
			}
			if j.Status != job.StatusCompleted {
				return fmt.Errorf("job %s %s", j.ID, j.Status)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func runCancelCmd(cmd *cobra.Command, args []string) error {
	res, err := newClient().Cancel(commandContext(cmd), args[0])
	if err != nil {
		return fmt.Errorf("cancel failed: %w", err)
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), res)
	}

	out := cmd.OutOrStdout()
	switch res.Outcome {
	case "cancelled":
		fmt.Fprintf(out, "Job %s cancelled\n", res.JobID)
	case "cancel_requested":
		fmt.Fprintf(out, "Cancellation requested for job %s; it stops at the next stage boundary\n", res.JobID)
	case "already_finished":
		fmt.Fprintf(out, "Job %s already finished\n", res.JobID)
	default:
		fmt.Fprintf(out, "Job %s: %s\n", res.JobID, res.Outcome)
	}
	return nil
}

func runEventsCmd(cmd *cobra.Command, args []string) error {
	client := newClient()
	ctx := commandContext(cmd)

	var (
		res *EventsResponse
		err error
	)
	if len(args) == 1 {
		res, err = client.JobEvents(ctx, args[0])
	} else {
		limit, _ := cmd.Flags().GetInt("limit")
		res, err = client.RecentEvents(ctx, limit)
	}
	if err != nil {
		return fmt.Errorf("events failed: %w", err)
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), res)
	}
	printEvents(cmd.OutOrStdout(), res)
	return nil
}

func runStatsCmd(cmd *cobra.Command, _ []string) error {
	res, err := newClient().Stats(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("stats failed: %w", err)
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), res)
	}
	printStats(cmd.OutOrStdout(), res)
	return nil
}

func runBackendsCmd(cmd *cobra.Command, _ []string) error {
	res, err := newClient().Providers(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("backends failed: %w", err)
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), res)
	}
	printProviders(cmd.OutOrStdout(), res)
	return nil
}

func runHealthCmd(cmd *cobra.Command, _ []string) error {
	res, err := newClient().Health(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), res)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Server:  %s (%s)\nVersion: %s\nUptime:  %s\n", serverURL, res.Status, orDash(res.Version), res.Uptime)
	return nil
}
