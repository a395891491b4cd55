package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tideway/internal/apiclient"
	"tideway/internal/fileutil"
	"tideway/internal/queue"
)

func newStreamURLCommand(ctx *commandContext) *cobra.Command {
	var quality string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stream-url <track-id>",
		Short: "Resolve a direct stream URL for a track",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTrackID(args[0])
			if err != nil {
				return err
			}
			if quality != "" {
				if _, ok := queue.ParseQuality(quality); !ok {
					return fmt.Errorf("unknown quality %q", quality)
				}
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				resp, err := client.StreamURL(cmd.Context(), id, quality)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, resp.StreamURL)
				fmt.Fprintf(cmd.ErrOrStderr(), "quality %s via %s\n", resp.Quality, orDash(resp.Endpoint))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&quality, "quality", "q", "", "Audio quality (defaults to downloads.default_quality)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON output")
	return cmd
}

func newStateCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var forget bool
	cmd := &cobra.Command{
		Use:   "state <track-id>",
		Short: "Show where a track is in its download lifecycle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTrackID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				if forget {
					removed, err := client.ForgetDownload(cmd.Context(), id)
					if err != nil {
						return err
					}
					if removed {
						fmt.Fprintf(cmd.OutOrStdout(), "Track %d removed from download history\n", id)
					} else {
						fmt.Fprintf(cmd.OutOrStdout(), "Track %d has no download history\n", id)
					}
					return nil
				}
				state, err := client.DownloadState(cmd.Context(), id)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, state)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Track %d: %s", state.TrackID, stateLabel(state.State))
				if state.Progress > 0 && state.Progress < 100 {
					fmt.Fprintf(out, " (%d%%)", state.Progress)
				}
				fmt.Fprintln(out)
				if entry := state.History; entry != nil {
					rows := [][]string{
						{"Artist", orDash(entry.Artist)},
						{"Title", orDash(entry.Title)},
						{"Quality", orDash(entry.Quality)},
						{"File", orDash(entry.FinalPath)},
						{"Endpoint", orDash(entry.EndpointHost)},
						{"Updated", formatTime(entry.UpdatedAt)},
					}
					if entry.Bytes > 0 {
						rows = append(rows, []string{"Size", humanize.IBytes(uint64(entry.Bytes))})
					}
					if entry.Error != "" {
						rows = append(rows, []string{"Error", entry.Error})
					}
					fmt.Fprint(out, renderTable([]string{"Field", "Value"}, rows, nil))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON output")
	cmd.Flags().BoolVar(&forget, "forget", false, "Drop the track's download history entry")
	cmd.MarkFlagsMutuallyExclusive("json", "forget")
	return cmd
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent download outcomes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must be zero or positive")
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				entries, err := client.History(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, entries)
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "No download history")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					detail := orDash(entry.Filename)
					if entry.Error != "" {
						detail = entry.Error
					}
					rows = append(rows, []string{
						strconv.FormatInt(entry.TrackID, 10),
						stateLabel(string(entry.Status)),
						orDash(entry.Artist),
						orDash(entry.Title),
						detail,
						humanize.Time(entry.UpdatedAt),
					})
				}
				fmt.Fprint(out, renderTable([]string{"Track", "Status", "Artist", "Title", "File / Error", "Updated"}, rows,
					[]columnAlignment{alignRight}))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show (0 uses the daemon default)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON output")
	return cmd
}

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var output string
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "fetch <track-id>",
		Short: "Copy a completed download from the daemon to a local file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTrackID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				target := strings.TrimSpace(output)
				if target == "" {
					state, err := client.DownloadState(cmd.Context(), id)
					if err != nil {
						return err
					}
					name := strconv.FormatInt(id, 10) + ".flac"
					if state.History != nil && state.History.Filename != "" {
						name = filepath.Base(state.History.Filename)
					}
					target = name
				}
				if !overwrite && fileutil.Exists(target) {
					return fmt.Errorf("%s already exists (use --overwrite to replace it)", target)
				}

				tmp := target + ".part"
				file, err := os.Create(tmp)
				if err != nil {
					return fmt.Errorf("create %s: %w", tmp, err)
				}
				n, copyErr := client.DownloadFile(cmd.Context(), id, file)
				closeErr := file.Close()
				if err := errors.Join(copyErr, closeErr); err != nil {
					_ = os.Remove(tmp)
					if apiclient.IsNotFound(copyErr) {
						return fmt.Errorf("track %d has no completed file on the daemon", id)
					}
					return err
				}
				if err := os.Rename(tmp, target); err != nil {
					_ = os.Remove(tmp)
					return fmt.Errorf("rename into place: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s)\n", target, humanize.IBytes(uint64(n)))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file (defaults to the download's filename)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing destination file")
	return cmd
}
