package cli

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"audioplot.dev/internal/tracking"
)

// analyzeFlags are shared by the analyze subcommands.
type analyzeFlags struct {
	days    int
	preset  string
	since   string
	until   string
	file    string
	kind    string
	limit   int
	summary bool
	json    bool
}

func (f *analyzeFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.days, "days", 7, "Number of days to analyze (0 = all time)")
	cmd.Flags().StringVar(&f.preset, "preset", "", "Date preset (today, yesterday, week, last-week, month, last-month, all)")
	cmd.Flags().StringVar(&f.since, "since", "", `Start of the range, e.g. "yesterday" or "3 days ago"`)
	cmd.Flags().StringVar(&f.until, "until", "", "End of the range, same forms as --since")
	cmd.Flags().StringVar(&f.file, "file", "", "Filter by file name")
	cmd.Flags().StringVar(&f.kind, "kind", "", "Only sessions with this event kind (play, pause, seek, finished, ...)")
	cmd.Flags().IntVar(&f.limit, "limit", 20, "Maximum number of results to show")
	cmd.Flags().BoolVar(&f.summary, "summary", false, "Show totals across the matching sessions")
	cmd.Flags().BoolVar(&f.json, "json", false, "Print JSON instead of text")
}

// filter validates the flags and builds the query filter.
func (f *analyzeFlags) filter(now time.Time) (tracking.QueryFilter, error) {
	filter := tracking.QueryFilter{
		Days:       f.days,
		DatePreset: f.preset,
		FileName:   f.file,
		Limit:      f.limit,
		Now:        now,
	}

	if f.preset != "" {
		if _, _, err := tracking.ParseDatePreset(f.preset, now); err != nil {
			return filter, err
		}
	}
	if f.since != "" {
		start, err := tracking.ParseNaturalDate(f.since, now)
		if err != nil {
			return filter, fmt.Errorf("invalid --since: %w", err)
		}
		filter.StartTime = &start
	}
	if f.until != "" {
		end, err := tracking.ParseNaturalDate(f.until, now)
		if err != nil {
			return filter, fmt.Errorf("invalid --until: %w", err)
		}
		filter.EndTime = &end
	}
	if f.kind != "" {
		kind, err := tracking.ParseEventKind(f.kind)
		if err != nil {
			return filter, err
		}
		filter.Kind = kind
	}
	return filter, nil
}

func (f *analyzeFlags) describeRange() string {
	switch {
	case f.preset != "":
		return f.preset
	case f.since != "" || f.until != "":
		from, to := f.since, f.until
		if from == "" {
			from = "the beginning"
		}
		if to == "" {
			to = "now"
		}
		return fmt.Sprintf("%s to %s", from, to)
	case f.days > 0:
		return fmt.Sprintf("Last %d days", f.days)
	}
	return "All time"
}

// newAnalyzeCommand creates the analyze command with subcommands
func newAnalyzeCommand() *cobra.Command {
	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze recorded playback sessions",
		Long:  "Analyze the session tracking database: what was played, how far, and how often playback underran.",
	}

	analyzeCmd.AddCommand(newAnalyzeSessionsCommand())
	analyzeCmd.AddCommand(newAnalyzeFilesCommand())

	return analyzeCmd
}

func newAnalyzeSessionsCommand() *cobra.Command {
	var flags analyzeFlags

	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "List playback sessions, newest first",
		Long: `List playback sessions recorded by "audioplot play", newest first.

Each session is one opened file: how often it was played, paused and
seeked, whether it played to the end, the furthest position reached and
the number of output underruns.

Examples:
  audioplot analyze sessions                     # Last 7 days
  audioplot analyze sessions --preset today      # Today only
  audioplot analyze sessions --since "2 weeks ago"
  audioplot analyze sessions --kind finished     # Sessions that reached the end
  audioplot analyze sessions --summary --days 0  # Totals over all time`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyzeSessions(cmd, &flags)
		},
	}
	flags.register(sessionsCmd)
	return sessionsCmd
}

func newAnalyzeFilesCommand() *cobra.Command {
	var flags analyzeFlags

	filesCmd := &cobra.Command{
		Use:   "files",
		Short: "Show which files were opened most often",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyzeFiles(cmd, &flags)
		},
	}
	flags.register(filesCmd)
	return filesCmd
}

// openAnalyzeDB loads the config and opens the tracking database. A nil
// database with a nil error means tracking is off; the caller explains.
func openAnalyzeDB(cmd *cobra.Command) (*sql.DB, error) {
	cli, err := mustCLI(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := loadAndValidateConfig(cmd, cli)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg, cli.configManager, cmd.ErrOrStderr())
	cli.initializeTracking(cfg)
	return cli.trackingDB, nil
}

func trackingDisabled(w io.Writer) {
	fmt.Fprintln(w, "Session tracking is not enabled or the database is not available.")
	fmt.Fprintln(w, "Enable tracking with AUDIOPLOT_TRACKING=true")
}

func runAnalyzeSessions(cmd *cobra.Command, flags *analyzeFlags) error {
	slog.Debug("running analyze sessions command",
		"days", flags.days, "preset", flags.preset, "since", flags.since, "file", flags.file, "kind", flags.kind)

	db, err := openAnalyzeDB(cmd)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if db == nil {
		trackingDisabled(w)
		return nil
	}

	filter, err := flags.filter(time.Now())
	if err != nil {
		return err
	}

	sessions, err := tracking.GetSessions(db, filter)
	if err != nil {
		return fmt.Errorf("failed to analyze sessions: %w", err)
	}

	var summary *tracking.UsageSummary
	if flags.summary {
		summary, err = tracking.GetUsageSummary(db, filter)
		if err != nil {
			slog.Warn("failed to get usage summary", "error", err)
		}
	}

	if flags.json {
		return writeJSON(w, struct {
			Sessions []tracking.SessionSummary `json:"sessions"`
			Summary  *tracking.UsageSummary    `json:"summary,omitempty"`
		}{sessions, summary})
	}
	return outputSessions(w, sessions, summary, flags)
}

func runAnalyzeFiles(cmd *cobra.Command, flags *analyzeFlags) error {
	db, err := openAnalyzeDB(cmd)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if db == nil {
		trackingDisabled(w)
		return nil
	}

	filter, err := flags.filter(time.Now())
	if err != nil {
		return err
	}

	files, err := tracking.GetFileUsage(db, filter)
	if err != nil {
		return fmt.Errorf("failed to analyze files: %w", err)
	}

	if flags.json {
		return writeJSON(w, files)
	}
	return outputFiles(w, files, flags)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputSessions formats the session list
func outputSessions(w io.Writer, sessions []tracking.SessionSummary, summary *tracking.UsageSummary, flags *analyzeFlags) error {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions found for the specified criteria.")
		if flags.days > 0 && flags.preset == "" {
			fmt.Fprintln(w, "Try expanding the time range with --days 0 (all time) or --preset all")
		}
		if flags.file != "" {
			fmt.Fprintln(w, "Try removing the --file filter to see all files")
		}
		if flags.kind != "" {
			fmt.Fprintln(w, "Try removing the --kind filter to see all sessions")
		}
		return nil
	}

	fmt.Fprintln(w, "Playback Sessions")
	fmt.Fprintln(w, "=================")
	fmt.Fprintf(w, "Time Range: %s\n", flags.describeRange())
	if flags.file != "" {
		fmt.Fprintf(w, "File Filter: %s\n", flags.file)
	}
	if flags.kind != "" {
		fmt.Fprintf(w, "Kind Filter: %s\n", flags.kind)
	}
	fmt.Fprintln(w)

	if summary != nil {
		fmt.Fprintf(w, "Summary: %d sessions, %d files, %d events, %d underruns\n",
			summary.TotalSessions, summary.UniqueFiles, summary.TotalEvents, summary.TotalUnderruns)
		if len(summary.KindDistribution) > 0 {
			fmt.Fprintf(w, "Events: %s\n", formatKinds(summary.KindDistribution))
		}
		fmt.Fprintln(w)
	}

	for i, s := range sessions {
		started := time.Unix(s.StartedAt, 0).Local().Format("2006-01-02 15:04")
		fmt.Fprintf(w, "%2d. %s  %s (%.3f sec.)\n", i+1, started, s.FileName, s.Seconds)

		reached := "reached " + fmt.Sprintf("%.3f sec.", s.FurthestAt)
		if s.Finished > 0 {
			reached = "played to the end"
		}
		fmt.Fprintf(w, "    %s, %s, %s, %s",
			plural(s.Plays, "play"), plural(s.Pauses, "pause"), plural(s.Seeks, "seek"), reached)
		if s.Markers > 0 {
			fmt.Fprintf(w, ", %s", plural(s.Markers, "marker"))
		}
		if s.Underruns > 0 {
			fmt.Fprintf(w, ", %s", plural(int(s.Underruns), "underrun"))
		}
		if s.Backend != "" {
			fmt.Fprintf(w, " [%s]", s.Backend)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// outputFiles formats per-file usage
func outputFiles(w io.Writer, files []tracking.FileUsage, flags *analyzeFlags) error {
	if len(files) == 0 {
		fmt.Fprintln(w, "No sessions found for the specified criteria.")
		return nil
	}

	fmt.Fprintln(w, "Most Opened Files")
	fmt.Fprintln(w, "=================")
	fmt.Fprintf(w, "Time Range: %s\n\n", flags.describeRange())

	for i, f := range files {
		last := time.Unix(f.LastOpened, 0).Local().Format("2006-01-02 15:04")
		fmt.Fprintf(w, "%2d. %s (%s, %s, %d finished) - last opened %s\n",
			i+1, f.FileName, plural(f.Sessions, "session"), plural(f.Plays, "play"), f.Finished, last)
	}
	return nil
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// formatKinds lists event kinds by count, most frequent first.
func formatKinds(dist map[string]int) string {
	kinds := make([]string, 0, len(dist))
	for k := range dist {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool {
		if dist[kinds[i]] != dist[kinds[j]] {
			return dist[kinds[i]] > dist[kinds[j]]
		}
		return kinds[i] < kinds[j]
	})

	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = fmt.Sprintf("%s %d", k, dist[k])
	}
	return strings.Join(parts, ", ")
}
