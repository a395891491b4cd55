package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"tideway/internal/api"
	"tideway/internal/apiclient"
	"tideway/internal/queue"
	"tideway/internal/tidal"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the download queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueAddCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueProgressCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued, active, completed, and failed downloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				state, err := client.Queue(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, state)
				}
				printQueueState(cmd.OutOrStdout(), state, shouldColorize(cmd.OutOrStdout()))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON output")
	return cmd
}

func printQueueState(out io.Writer, state api.QueueState, colorize bool) {
	if len(state.Queue)+len(state.Active)+len(state.Completed)+len(state.Failed) == 0 {
		fmt.Fprintln(out, "Queue is empty")
		return
	}

	if len(state.Active) > 0 {
		printSection(out, "Active", colorize)
		fmt.Fprint(out, renderTable(
			[]string{"Track", "Artist", "Title", "Status", "Progress"},
			activeRows(state.Active),
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight},
		))
	}
	if len(state.Queue) > 0 {
		printSection(out, "Queued", colorize)
		rows := lo.Map(state.Queue, func(item queue.Item, _ int) []string {
			return []string{formatID(item.TrackID), item.Artist, item.Title, string(item.Quality)}
		})
		fmt.Fprint(out, renderTable([]string{"Track", "Artist", "Title", "Quality"}, rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft}))
	}
	if len(state.Completed) > 0 {
		printSection(out, "Completed", colorize)
		rows := lo.Map(state.Completed, func(rec queue.CompletedRecord, _ int) []string {
			return []string{formatID(rec.TrackID), rec.Artist, rec.Title, orDash(rec.Filename), formatTime(rec.CompletedAt)}
		})
		fmt.Fprint(out, renderTable([]string{"Track", "Artist", "Title", "File", "Completed"}, rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft}))
	}
	if len(state.Failed) > 0 {
		printSection(out, "Failed", colorize)
		rows := lo.Map(state.Failed, func(rec queue.FailedRecord, _ int) []string {
			return []string{formatID(rec.TrackID), rec.Artist, rec.Title, rec.Error, formatTime(rec.FailedAt)}
		})
		fmt.Fprint(out, renderTable([]string{"Track", "Artist", "Title", "Error", "Failed"}, rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft}))
	}
}

func activeRows(active []queue.ActiveItem) [][]string {
	return lo.Map(active, func(item queue.ActiveItem, _ int) []string {
		return []string{
			formatID(item.Item.TrackID),
			item.Item.Artist,
			item.Item.Title,
			stateLabel(string(item.Status)),
			strconv.Itoa(item.Progress) + "%",
		}
	})
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	var (
		title   string
		artist  string
		album   string
		quality string
		file    string
		albumID int64
	)

	cmd := &cobra.Command{
		Use:   "add [track-id]",
		Short: "Queue tracks for download",
		Long: "Queue a single track by id with --title and --artist, every track of an album " +
			"with --album-id, or a JSON list of tracks with --file (use - for stdin).",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if quality != "" {
				if _, ok := queue.ParseQuality(quality); !ok {
					return fmt.Errorf("unknown quality %q (use LOW, HIGH, LOSSLESS, or HI_RES)", quality)
				}
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				var requests []api.TrackRequest
				switch {
				case file != "":
					data, err := readInput(cmd.InOrStdin(), file)
					if err != nil {
						return err
					}
					requests, err = api.DecodeTrackRequests(data)
					if err != nil {
						return err
					}
				case albumID > 0:
					tracks, err := client.AlbumTracks(cmd.Context(), albumID)
					if err != nil {
						return err
					}
					requests = lo.Map(tracks, func(track tidal.Track, _ int) api.TrackRequest {
						return trackRequest(track)
					})
				case len(args) == 1:
					id, err := parseTrackID(args[0])
					if err != nil {
						return err
					}
					if strings.TrimSpace(title) == "" || strings.TrimSpace(artist) == "" {
						return errors.New("--title and --artist are required when adding a single track")
					}
					requests = []api.TrackRequest{{TrackID: id, Title: title, Artist: artist, Album: album}}
				default:
					return errors.New("provide a track id, --album-id, or --file")
				}

				for i := range requests {
					if requests[i].Quality == "" {
						requests[i].Quality = quality
					}
				}
				if len(requests) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing to queue")
					return nil
				}

				resp, err := client.Add(cmd.Context(), requests)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %d track(s)", resp.Added)
				if resp.Skipped > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), ", skipped %d already known", resp.Skipped)
				}
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Track title")
	cmd.Flags().StringVar(&artist, "artist", "", "Track artist")
	cmd.Flags().StringVar(&album, "album", "", "Album name")
	cmd.Flags().StringVarP(&quality, "quality", "q", "", "Audio quality (LOW, HIGH, LOSSLESS, HI_RES)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file of tracks to queue")
	cmd.Flags().Int64Var(&albumID, "album-id", 0, "Queue every track of this album")
	cmd.MarkFlagsMutuallyExclusive("file", "album-id")
	return cmd
}

func trackRequest(track tidal.Track) api.TrackRequest {
	return api.TrackRequest{
		TrackID: track.ID,
		Title:   track.Title,
		Artist:  track.Artist,
		Album:   track.Album,
	}
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <track-id>...",
		Short: "Remove queued tracks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseTrackIDs(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				out := cmd.OutOrStdout()
				for _, id := range ids {
					removed, err := client.Remove(cmd.Context(), id)
					if err != nil {
						return err
					}
					if removed {
						fmt.Fprintf(out, "Track %d removed\n", id)
					} else {
						fmt.Fprintf(out, "Track %d not queued\n", id)
					}
				}
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [track-id...]",
		Short: "Requeue failed downloads (all of them when no id is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseTrackIDs(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				out := cmd.OutOrStdout()
				if len(ids) == 0 {
					count, err := client.RetryFailed(cmd.Context())
					if err != nil {
						return err
					}
					if count == 0 {
						fmt.Fprintln(out, "No failed downloads to retry")
						return nil
					}
					fmt.Fprintf(out, "Requeued %d failed download(s)\n", count)
					return nil
				}
				for _, id := range ids {
					ok, err := client.RetrySingle(cmd.Context(), id)
					if err != nil {
						return err
					}
					if ok {
						fmt.Fprintf(out, "Track %d requeued\n", id)
					} else {
						fmt.Fprintf(out, "Track %d is not in the failed list\n", id)
					}
				}
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var completed, failed bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear queued tracks, or completed/failed records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				var (
					count int
					err   error
				)
				switch {
				case completed:
					count, err = client.ClearCompleted(cmd.Context())
				case failed:
					count, err = client.ClearFailed(cmd.Context())
				default:
					count, err = client.ClearQueue(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d %s\n", count, clearLabel(completed, failed))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&completed, "completed", false, "Clear completed records")
	cmd.Flags().BoolVar(&failed, "failed", false, "Clear failed records")
	cmd.MarkFlagsMutuallyExclusive("completed", "failed")
	return cmd
}

func clearLabel(completed, failed bool) string {
	switch {
	case completed:
		return "completed record(s)"
	case failed:
		return "failed record(s)"
	default:
		return "queued track(s)"
	}
}

func newQueueProgressCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Show progress of active downloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				progress, err := client.Progress(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, progress)
				}
				out := cmd.OutOrStdout()
				if len(progress.Active) == 0 {
					fmt.Fprintln(out, "No active downloads")
					return nil
				}
				rows := lo.Map(progress.Active, func(entry api.ProgressEntry, _ int) []string {
					return []string{
						formatID(entry.TrackID),
						entry.Artist,
						entry.Title,
						stateLabel(string(entry.Status)),
						strconv.Itoa(entry.Progress) + "%",
					}
				})
				fmt.Fprint(out, renderTable([]string{"Track", "Artist", "Title", "Status", "Progress"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON output")
	return cmd
}
