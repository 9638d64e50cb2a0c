package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muurk/airscout/internal/airrohr"
	"github.com/muurk/airscout/internal/config"
	"github.com/muurk/airscout/internal/server"
	"github.com/muurk/airscout/internal/tui"
	"github.com/muurk/airscout/internal/ui"
)

// Command flags
var (
	scanDuration    time.Duration
	outputFormat    string
	refreshInterval time.Duration
	deviceAddress   string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "Output format for scan and fetch (table, json)")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(configCmd)
}

// scanCmd discovers sensors for a fixed time and prints what it found
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for sensors on the network",
	Long: `Scan for sensor.community nodes using mDNS/DNS-SD discovery.

The scan runs for --duration. Every sensor found is resolved to an address
and read once; the final table shows each sensor with its latest values.`,
	Example: `  # Scan for 20 seconds (default)
  airscout scan

  # Longer scan for networks with slow or sleepy nodes
  airscout scan --duration 1m

  # JSON output for scripting
  airscout scan --format json`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().DurationVar(&scanDuration, "duration", 20*time.Second, "How long to scan")
}

func runScan(cmd *cobra.Command, args []string) error {
	if outputFormat != "table" && outputFormat != "json" {
		return fmt.Errorf("unknown format %q (table, json)", outputFormat)
	}

	reg, err := loadRegistry()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	prefs, err := preferences(cmd, reg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	sess := newSession(reg, prefs, nil)
	sess.start(ctx)

	interactive := outputFormat == "table" && ui.IsTerminal()
	if interactive {
		updates, unsubscribe := sess.coordinator.Subscribe()
		final, err := tea.NewProgram(tui.NewScanModel(updates, scanDuration)).Run()
		unsubscribe()
		if err != nil {
			_ = sess.stop()
			return fmt.Errorf("scan screen failed: %w", err)
		}
		if m, ok := final.(tui.ScanModel); ok && m.Aborted {
			return sess.stop()
		}
	} else {
		select {
		case <-time.After(scanDuration):
		case <-ctx.Done():
		}
	}

	snap := sess.coordinator.Snapshot()
	stopErr := sess.stop()

	if outputFormat == "json" {
		if err := writeJSON(server.NewSnapshotView(snap)); err != nil {
			return err
		}
		return stopErr
	}

	p := ui.NewPrinter(os.Stdout)
	if stopErr != nil {
		p.PrintError("Scan", stopErr)
		return stopErr
	}

	p.PrintHeader(ui.NewHeader("Sensor Scan", "airscout scan").
		Add("Service", prefs.ServiceType).
		Add("Duration", scanDuration.String()).
		Add("Found", fmt.Sprintf("%d", snap.Len())))

	if snap.Len() == 0 {
		p.PrintResult(ui.NewWarningResult("No sensors found",
			ui.Param{Key: "Hint", Value: "Check you are on the sensors' network"},
			ui.Param{Key: "Hint", Value: "Try a longer --duration"},
		))
		return nil
	}

	table := ui.NewDeviceTable(snap)
	table.Names = displayNames(reg)
	p.PrintDevices(table)
	p.Newline()
	p.Println(ui.TableMutedStyle.Render("Use 'airscout fetch --device <address>' to read a sensor again"))
	return nil
}

// watchCmd shows a live device list
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch sensors live in the terminal",
	Long: `Launch the live watch screen.

Sensors appear as they are announced and disappear when they go silent.
Select a sensor to see its details, request a new resolve, or read it
again. With --refresh, every ready sensor is read periodically.`,
	Example: `  # Watch (also the default command)
  airscout watch
  airscout

  # Re-read every sensor once a minute
  airscout watch --refresh 1m`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&refreshInterval, "refresh", 0, "Re-read ready sensors at this interval (0 uses the configured value)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if !ui.IsTerminal() {
		return errors.New("watch needs a terminal; use 'airscout scan' or 'airscout serve' instead")
	}

	reg, err := loadRegistry()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	prefs, err := preferences(cmd, reg)
	if err != nil {
		return err
	}
	if refreshInterval > 0 {
		prefs.RefreshInterval = refreshInterval
	}

	sess := newSession(reg, prefs, nil)
	sess.start(cmd.Context())

	updates, unsubscribe := sess.coordinator.Subscribe()
	model := tui.NewWatchModel(sess.coordinator, updates)
	model.Names = displayNames(reg)

	_, runErr := tea.NewProgram(model, tea.WithAltScreen()).Run()
	unsubscribe()

	stopErr := sess.stop()
	if runErr != nil {
		return fmt.Errorf("watch screen failed: %w", runErr)
	}
	return stopErr
}

// fetchCmd reads one sensor directly
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Read one sensor by address",
	Long: `Read the current values of one sensor without discovery.

Use this when mDNS is blocked on your network, or to check a sensor found
earlier with 'airscout scan'.`,
	Example: `  airscout fetch --device 192.168.1.40
  airscout fetch --device airrohr-1234567.local --format json`,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVar(&deviceAddress, "device", "", "Sensor address (host or host:port)")
	_ = fetchCmd.MarkFlagRequired("device")
}

func runFetch(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	prefs, err := preferences(cmd, reg)
	if err != nil {
		return err
	}

	client := airrohr.NewClient()
	client.SetTimeout(prefs.FetchTimeout)

	ctx, cancel := context.WithTimeout(cmd.Context(), prefs.FetchTimeout)
	defer cancel()

	readings, err := client.FetchReadings(ctx, deviceAddress)

	if outputFormat == "json" {
		if err != nil {
			return err
		}
		return writeJSON(readings)
	}

	p := ui.NewPrinter(os.Stdout)
	if err != nil {
		p.PrintError(deviceAddress, err)
		return errors.New(airrohr.GetShortErrorMessage(err))
	}

	result := ui.NewSuccessResult(deviceAddress, ui.ReadingsDetails(readings)...)
	result.AddDetail("URL", "http://"+deviceAddress)
	p.PrintResult(result)
	return nil
}

// configCmd manages the config file
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the airscout config file",
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			fmt.Println(configPath)
			return nil
		}
		path, err := config.GetConfigPath()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with default preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			if _, err := os.Stat(configPath); err == nil {
				return fmt.Errorf("config file already exists: %s", configPath)
			}
			if err := config.NewRegistry().SaveTo(configPath); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", configPath)
			return nil
		}
		path, err := config.CreateDefaultConfig()
		if err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(reg)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Print(string(data))
		return nil
	},
}

var configNicknameCmd = &cobra.Command{
	Use:   "nickname <sensor> <nickname>",
	Short: "Set the name shown for a sensor",
	Long: `Set the name shown for a sensor in scan and watch output.
An empty nickname clears it.`,
	Example: `  airscout config nickname airRohr-1234567 Balcony
  airscout config nickname airRohr-1234567 ""`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		reg.SetDeviceNickname(args[0], args[1])
		return saveRegistry(reg)
	},
}

var configDevicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List remembered sensors",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}

		names := make([]string, 0, len(reg.Devices))
		for name := range reg.Devices {
			names = append(names, name)
		}
		sort.Strings(names)

		if len(names) == 0 {
			fmt.Println("No sensors remembered yet. Run 'airscout scan' first.")
			return nil
		}
		for _, name := range names {
			dev := reg.Devices[name]
			fmt.Printf("%-24s %-20s last seen %s\n",
				reg.DisplayName(name), dev.LastAddress, dev.LastSeen.Format(time.DateTime))
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configNicknameCmd)
	configCmd.AddCommand(configDevicesCmd)
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return nil
}
