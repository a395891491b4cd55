package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"tideway/internal/apiclient"
	"tideway/internal/tidal"
)

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var kind string

	cmd := &cobra.Command{
		Use:   "search <query>...",
		Short: "Search the catalog for tracks, albums, or artists",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				return fmt.Errorf("search query is empty")
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				out := cmd.OutOrStdout()
				switch strings.ToLower(kind) {
				case "tracks", "track":
					tracks, err := client.SearchTracks(cmd.Context(), query)
					if err != nil {
						return err
					}
					if asJSON {
						return writeJSON(cmd, tracks)
					}
					printTracks(out, tracks)
				case "albums", "album":
					albums, err := client.SearchAlbums(cmd.Context(), query)
					if err != nil {
						return err
					}
					if asJSON {
						return writeJSON(cmd, albums)
					}
					printAlbums(out, albums)
				case "artists", "artist":
					artists, err := client.SearchArtists(cmd.Context(), query)
					if err != nil {
						return err
					}
					if asJSON {
						return writeJSON(cmd, artists)
					}
					printArtists(out, artists)
				default:
					return fmt.Errorf("unknown search kind %q (use tracks, albums, or artists)", kind)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", "tracks", "What to search for: tracks, albums, or artists")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON output")
	return cmd
}

func newAlbumCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "album <album-id>",
		Short: "List the tracks of an album",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTrackID(args[0])
			if err != nil {
				return fmt.Errorf("invalid album id %q", args[0])
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				tracks, err := client.AlbumTracks(cmd.Context(), id)
				if err != nil {
					if apiclient.IsNotFound(err) {
						return fmt.Errorf("album %d not found", id)
					}
					return err
				}
				if asJSON {
					return writeJSON(cmd, tracks)
				}
				printTracks(cmd.OutOrStdout(), tracks)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON output")
	return cmd
}

func newArtistCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "artist <artist-id>",
		Short: "Show an artist with top tracks and albums",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTrackID(args[0])
			if err != nil {
				return fmt.Errorf("invalid artist id %q", args[0])
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				page, err := client.Artist(cmd.Context(), id)
				if err != nil {
					if apiclient.IsNotFound(err) {
						return fmt.Errorf("artist %d not found", id)
					}
					return err
				}
				if asJSON {
					return writeJSON(cmd, page)
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				printSection(out, page.Artist.Name, colorize)
				fmt.Fprintln(out, "Top tracks")
				printTracks(out, page.TopTracks)
				fmt.Fprintln(out, "Albums")
				printAlbums(out, page.Albums)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON output")
	return cmd
}

func printTracks(out io.Writer, tracks []tidal.Track) {
	if len(tracks) == 0 {
		fmt.Fprintln(out, "No tracks found")
		return
	}
	rows := lo.Map(tracks, func(t tidal.Track, _ int) []string {
		return []string{formatID(t.ID), t.Artist, t.Title, orDash(t.Album), formatDuration(t.Duration), orDash(t.Quality)}
	})
	fmt.Fprint(out, renderTable([]string{"ID", "Artist", "Title", "Album", "Length", "Quality"}, rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft}))
}

func printAlbums(out io.Writer, albums []tidal.Album) {
	if len(albums) == 0 {
		fmt.Fprintln(out, "No albums found")
		return
	}
	rows := lo.Map(albums, func(a tidal.Album, _ int) []string {
		tracks := "-"
		if a.NumberOfTracks > 0 {
			tracks = strconv.Itoa(a.NumberOfTracks)
		}
		return []string{formatID(a.ID), orDash(a.Artist), a.Title, orDash(a.Year), tracks}
	})
	fmt.Fprint(out, renderTable([]string{"ID", "Artist", "Title", "Year", "Tracks"}, rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight}))
}

func printArtists(out io.Writer, artists []tidal.Artist) {
	if len(artists) == 0 {
		fmt.Fprintln(out, "No artists found")
		return
	}
	rows := lo.Map(artists, func(a tidal.Artist, _ int) []string {
		return []string{formatID(a.ID), a.Name}
	})
	fmt.Fprint(out, renderTable([]string{"ID", "Name"}, rows, []columnAlignment{alignRight, alignLeft}))
}
