// Airscout finds sensor.community (airRohr) air quality sensors on the
// local network and shows their live readings.
//
// Sensors are discovered over mDNS, resolved one at a time, and polled for
// their data.json. The same discovery core backs a one-shot scan, a live
// terminal view, and an HTTP/WebSocket server that can forward readings to
// MQTT and InfluxDB.
//
// Usage:
//
//	airscout [command] [flags]
//
// Running without arguments launches the live watch screen.
// See 'airscout --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/airscout/internal/logging"
	"github.com/muurk/airscout/internal/version"
)

func main() {
	defer logging.Sync()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "airscout",
	Short: "Local discovery for sensor.community air quality sensors",
	Long: `Find sensor.community (airRohr) nodes on your local network and read
their particulate matter, temperature, humidity and pressure values.

Sensors are discovered over mDNS. No cloud account is needed; your computer
only has to be on the same network as the sensors.

If no command is specified, the live watch screen is launched.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Initialize(logLevel)
	},
	RunE: runWatch,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("airscout " + version.Full())
	},
}
