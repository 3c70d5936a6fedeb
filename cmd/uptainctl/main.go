// uptainctl is a CLI for previewing tracker output against a running
// uptain-sync server and for converting attribute values offline.
//
// Examples:
//
//	uptainctl snapshot --state cart.json
//	uptainctl script --state cart.json --previous home.json
//	uptainctl consent --cookie '{"groups":{}}' --accepted
//	uptainctl live state --state product.json && uptainctl live script
//	uptainctl decode "{12:{amount:2,name:'Dummyartikel'}}"
//	uptainctl encode legacy.json
package main

import (
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var client = &http.Client{Timeout: 30 * time.Second}

// Global flags (apply to all commands)
var (
	serverURL string
	quiet     bool
	noColor   bool
	verbose   bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow = "", "", "", ""
	colorCyan, colorGray, colorBold = "", "", ""
}

var rootCmd = &cobra.Command{
	Use:   "uptainctl",
	Short: "Preview and debug uptain tracker snapshots",
	Long: `uptainctl talks to an uptain-sync server to preview the tracking script
a storefront state produces, and converts attribute values between the JSON
and compact encodings without a server.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor || os.Getenv("NO_COLOR") != "" {
			disableColors()
		}
	},
}

func init() {
	defaultServer := os.Getenv("UPTAIN_SYNC_URL")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", defaultServer, "uptain-sync base URL (or set UPTAIN_SYNC_URL)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Print only the result")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print full request and response bodies")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(scriptCmd)
	rootCmd.AddCommand(consentCmd)
	rootCmd.AddCommand(liveCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(encodeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
