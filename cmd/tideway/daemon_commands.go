package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tideway/internal/api"
	"tideway/internal/daemonctl"
)

const (
	startTimeout = 10 * time.Second
	stopGrace    = 5 * time.Second
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var startLogLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the tideway daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			client, err := ctx.newClient()
			if err != nil {
				return wrapDialError(err, ctx.apiAddress())
			}

			result, err := daemonctl.EnsureStarted(cmd.Context(), client, exe, daemonLaunchOptions(ctx, startLogLevel), startTimeout)
			if err != nil {
				return err
			}
			printStartResult(stdout, result, "Daemon started")
			return nil
		},
	}
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Override logging.level for the daemon")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the tideway daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			client, err := ctx.newClient()
			if err != nil {
				return wrapDialError(err, ctx.apiAddress())
			}
			result, err := daemonctl.Stop(cmd.Context(), client, ctx.configValue(), stopGrace)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			printStopResult(stdout, result)
			return nil
		},
	}

	var restartLogLevel string
	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the tideway daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			client, err := ctx.newClient()
			if err != nil {
				return wrapDialError(err, ctx.apiAddress())
			}

			stop, err := daemonctl.Stop(cmd.Context(), client, ctx.configValue(), stopGrace)
			switch {
			case errors.Is(err, daemonctl.ErrDaemonNotRunning):
			case err != nil:
				return err
			default:
				printStopResult(stdout, stop)
			}

			result, err := daemonctl.EnsureStarted(cmd.Context(), client, exe, daemonLaunchOptions(ctx, restartLogLevel), startTimeout)
			if err != nil {
				return err
			}
			printStartResult(stdout, result, "Daemon restarted")
			return nil
		},
	}
	restartCmd.Flags().StringVar(&restartLogLevel, "log-level", "", "Override logging.level for the daemon")

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var health daemonctl.Health = unreachable{}
			if client, err := ctx.newClient(); err == nil {
				health = client
			}
			status := daemonctl.StatusSnapshot(cmd.Context(), health, ctx.configValue())
			if statusJSON {
				return writeJSON(cmd, status)
			}
			renderDaemonStatus(cmd.OutOrStdout(), status, shouldColorize(cmd.OutOrStdout()))
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Emit JSON output")

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func renderDaemonStatus(out io.Writer, status api.DaemonStatus, colorize bool) {
	printSection(out, "System Status", colorize)
	if status.Running {
		detail := "Running"
		if status.PID > 0 {
			detail = fmt.Sprintf("Running (pid %d)", status.PID)
		}
		fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, detail, colorize))
		if !status.StartedAt.IsZero() {
			fmt.Fprintln(out, renderStatusLine("Started", statusInfo, humanize.Time(status.StartedAt), colorize))
		}
		if status.SessionID != "" {
			fmt.Fprintln(out, renderStatusLine("Session", statusInfo, status.SessionID, colorize))
		}
		kind := statusOK
		if status.Endpoints == 0 {
			kind = statusError
		}
		fmt.Fprintln(out, renderStatusLine("Endpoints", kind, strconv.Itoa(status.Endpoints), colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusError, "Not running", colorize))
	}
	fmt.Fprintln(out)

	printSection(out, "Paths", colorize)
	fmt.Fprintln(out, renderStatusLine("Downloads", statusInfo, orDash(status.DownloadDir), colorize))
	fmt.Fprintln(out, renderStatusLine("State", statusInfo, orDash(status.StatePath), colorize))
	fmt.Fprintln(out, renderStatusLine("History", statusInfo, orDash(status.HistoryPath), colorize))
	fmt.Fprintln(out, renderStatusLine("Lock", statusInfo, orDash(status.LockFilePath), colorize))
	fmt.Fprintln(out)

	printSection(out, "Queue Status", colorize)
	rows := queueCountRows(status.Queue)
	if len(rows) == 0 {
		fmt.Fprintln(out, "Queue is empty")
		return
	}
	fmt.Fprint(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func queueCountRows(counts api.QueueCounts) [][]string {
	var rows [][]string
	for _, entry := range []struct {
		label string
		count int
	}{
		{"Queued", counts.Queued},
		{"Active", counts.Active},
		{"Completed", counts.Completed},
		{"Failed", counts.Failed},
	} {
		if entry.count > 0 {
			rows = append(rows, []string{entry.label, strconv.Itoa(entry.count)})
		}
	}
	return rows
}

func printStartResult(out io.Writer, result daemonctl.StartResult, started string) {
	switch result.State {
	case daemonctl.StartStateAlreadyRunning:
		fmt.Fprintln(out, "Daemon already running")
	default:
		if result.PID > 0 {
			fmt.Fprintf(out, "%s (pid %d)\n", started, result.PID)
			return
		}
		fmt.Fprintln(out, started)
	}
}

func printStopResult(out io.Writer, result daemonctl.StopResult) {
	if result.ForcedKill && result.PID > 0 {
		fmt.Fprintf(out, "Daemon did not exit in time; killed pid %d\n", result.PID)
		return
	}
	fmt.Fprintln(out, "Daemon stopped")
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext, logLevel string) daemonctl.LaunchOptions {
	return daemonctl.LaunchOptions{
		ConfigPath: ctx.configPath(),
		LogLevel:   logLevel,
	}
}

// unreachable stands in for a client when no API address is configured.
type unreachable struct{}

func (unreachable) Health(context.Context) error {
	return errors.New("daemon api disabled")
}

func (unreachable) Status(context.Context) (api.DaemonStatus, error) {
	return api.DaemonStatus{}, errors.New("daemon api disabled")
}
