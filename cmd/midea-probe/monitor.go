package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/midealan/adapter"
	"github.com/muurk/midealan/discovery"
	"github.com/muurk/midealan/internal/config"
	"github.com/muurk/midealan/internal/logging"
	"github.com/muurk/midealan/internal/monitor"
	tuipkg "github.com/muurk/midealan/internal/monitor/tui"
	"github.com/muurk/midealan/session"
)

var (
	monitorDiscoverTimeout time.Duration
	monitorAddr            string
	monitorTUI             bool
	monitorRefresh         time.Duration
	monitorHeartbeat       time.Duration
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Discover devices with stored credentials and watch their status",
	Long: `monitor discovers devices on the network, opens a control session for
every one the local config registry already has credentials for (run
'discover' first, then provision credentials out of band), and fans
their status updates out either to a terminal table or a browser
dashboard served over WebSocket.`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().DurationVar(&monitorDiscoverTimeout, "discover-timeout", 5*time.Second, "how long to wait for discovery responses")
	monitorCmd.Flags().StringVar(&monitorAddr, "addr", "127.0.0.1:8765", "dashboard listen address (ignored with --tui)")
	monitorCmd.Flags().BoolVar(&monitorTUI, "tui", false, "show a terminal dashboard instead of serving the web one")
	monitorCmd.Flags().DurationVar(&monitorRefresh, "refresh-interval", 30*time.Second, "per-session status refresh interval")
	monitorCmd.Flags().DurationVar(&monitorHeartbeat, "heartbeat-interval", 10*time.Second, "per-session heartbeat interval")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	discCtx, discCancel := context.WithTimeout(ctx, monitorDiscoverTimeout+time.Second)
	found, err := discovery.Discover(discCtx, discovery.Options{Timeout: monitorDiscoverTimeout})
	discCancel()
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}

	registry, err := config.LoadRegistry()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.GetLogger()

	var sessions []*session.Session
	var descs []discovery.Descriptor
	for _, desc := range found {
		dev := registry.GetDevice(desc.ID)
		if dev == nil || dev.TokenHex == "" || dev.KeyHex == "" {
			logger.Warn("monitor: no stored credentials, skipping",
				zap.Uint64("device_id", desc.ID))
			continue
		}

		sess, err := session.New(session.Options{
			Name:              dev.Nickname,
			DeviceID:          desc.ID,
			IP:                desc.Address.String(),
			Port:              desc.Port,
			TokenHex:          dev.TokenHex,
			KeyHex:            dev.KeyHex,
			Protocol:          dev.ProtocolVersion,
			RefreshInterval:   monitorRefresh,
			HeartbeatInterval: monitorHeartbeat,
			Adapter:           adapter.NewGenericAdapter(desc.ApplianceType),
			Logger:            logger,
		})
		if err != nil {
			logger.Warn("monitor: cannot create session", zap.Uint64("device_id", desc.ID), zap.Error(err))
			continue
		}
		sessions = append(sessions, sess)
		descs = append(descs, desc)
	}

	if len(sessions) == 0 {
		fmt.Println("no provisioned devices found; run 'discover' and provision credentials first")
		return nil
	}

	if monitorTUI {
		return runMonitorTUI(ctx, sessions, descs)
	}
	return runMonitorDashboard(ctx, sessions, descs, logger)
}

func runMonitorDashboard(ctx context.Context, sessions []*session.Session, descs []discovery.Descriptor, logger *zap.Logger) error {
	hub := monitor.NewHub(logger)
	srv, err := monitor.New(monitor.Config{Addr: monitorAddr, Logger: logger}, hub)
	if err != nil {
		return fmt.Errorf("monitor: %w", err)
	}

	for i, sess := range sessions {
		desc := descs[i]
		sess.RegisterObserver(hub.Observer(desc.ID, sess.Descriptor().Serial))
		sess.Open()
		defer sess.Close()
	}

	fmt.Printf("dashboard at http://%s\n", monitorAddr)
	return srv.ListenAndServe(ctx)
}

func runMonitorTUI(ctx context.Context, sessions []*session.Session, descs []discovery.Descriptor) error {
	model := tuipkg.NewModel(descs)
	program := tea.NewProgram(model)

	for i, sess := range sessions {
		deviceID := descs[i].ID
		sess.RegisterObserver(func(status adapter.Status) {
			program.Send(tuipkg.StatusMsg{DeviceID: deviceID, Status: status})
		})
		sess.Open()
		defer sess.Close()
	}

	go func() {
		<-ctx.Done()
		program.Quit()
	}()

	_, err := program.Run()
	return err
}
