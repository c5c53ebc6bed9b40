package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/matheus3301/tgbridge/internal/daemon"
	"github.com/matheus3301/tgbridge/internal/lock"
	"github.com/matheus3301/tgbridge/internal/session"
	intsync "github.com/matheus3301/tgbridge/internal/sync"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const healthTimeout = 2 * time.Second

type statusInfo struct {
	Session   string          `json:"session"`
	Running   bool            `json:"running"`
	PID       int             `json:"pid,omitempty"`
	Since     *time.Time      `json:"since,omitempty"`
	Health    string          `json:"health"`
	LastSweep *time.Time      `json:"last_sweep,omitempty"`
	Sweep     *intsync.Report `json:"sweep,omitempty"`

	Activity *daemon.ActivitySnapshot `json:"activity,omitempty"`
}

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon health and the last sync sweep",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			name, err := app.sessionName()
			if err != nil {
				return err
			}
			ctx := context.Background()
			info := statusInfo{Session: name}

			holder, err := lock.ReadHolder(session.LockPath(name))
			if err != nil {
				return err
			}
			if holder.PID > 0 {
				info.Running = true
				info.PID = holder.PID
				if !holder.Since.IsZero() {
					info.Since = &holder.Since
				}
			}

			info.Health = checkHealth(ctx, session.SocketPath(name))

			if db, _, err := app.openStore(); err == nil {
				at, report, err := intsync.NewReconciler(db, zap.NewNop()).LastSweep(ctx)
				if err != nil {
					_ = db.Close()
					return err
				}
				if !at.IsZero() {
					info.LastSweep = &at
					info.Sweep = &report
				}
				activity, ok, err := daemon.ReadActivity(ctx, db)
				_ = db.Close()
				if err != nil {
					return err
				}
				if ok {
					info.Activity = &activity
				}
			}

			if app.JSON {
				return writeJSON(app.out, info)
			}
			w := newTabWriter(app.out)
			rows := [][2]string{
				{"Session", info.Session},
				{"Daemon", daemonLine(info)},
				{"Health", info.Health},
				{"Last sweep", formatTimePtr(info.LastSweep)},
			}
			if info.Sweep != nil {
				rows = append(rows, [2]string{"Sweep", fmt.Sprintf("%d/%d dialogs, %d failed, %d messages in %s",
					info.Sweep.Synced, info.Sweep.Dialogs, info.Sweep.Failed, info.Sweep.Messages, info.Sweep.Duration.Round(time.Millisecond))})
			}
			if a := info.Activity; a != nil {
				rows = append(rows,
					[2]string{"Activity since", formatTimePtr(&a.StartedAt)},
					[2]string{"Messages", fmt.Sprintf("%d live, %d from history", a.LiveMessages, a.HistoryMessages)},
					[2]string{"Sends", fmt.Sprintf("%d ok, %d failed", a.SendsOK, a.SendsFailed)},
				)
			}
			for _, r := range rows {
				if err := writef(w, "%s:\t%s\n", r[0], r[1]); err != nil {
					return err
				}
			}
			return w.Flush()
		},
	}
}

func daemonLine(info statusInfo) string {
	if !info.Running {
		return "stopped"
	}
	if info.Health == "unreachable" {
		return fmt.Sprintf("not responding (lock held by pid %d)", info.PID)
	}
	return fmt.Sprintf("running (pid %d, since %s)", info.PID, formatTimePtr(info.Since))
}

// checkHealth asks the daemon socket for its serving status. Failures are
// reported as a status, never as an error.
func checkHealth(ctx context.Context, socketPath string) string {
	if _, err := os.Stat(socketPath); err != nil {
		return "unreachable"
	}
	conn, err := grpc.NewClient("unix://"+socketPath, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return "unreachable"
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: daemon.ServiceName})
	if err != nil {
		return "unreachable"
	}
	return resp.GetStatus().String()
}
