package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "clinirelay",
	Short: "Clinical voice relay",
	Long: `clinirelay accepts recorded voice clips over WebSocket, transcribes and
optionally translates them, asks a clinical assistant for a diagnosis
summary and streams both results to subscribers.

Channels:
  voice        - inbound clips and acknowledgements (default :8081/ws)
  transcribed  - transcripts and translations (default :6081/ws)
  diagnosis    - diagnosis summaries (default :7081/ws)`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")
}

func printError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
}
