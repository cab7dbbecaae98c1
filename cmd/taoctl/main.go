// Command taoctl is the generic client CLI of SPEC_FULL.md's component
// table: attach a remote camera/mirror/sensor by shmid or by
// configuration-directory path, wait for its shmid to be advertised,
// list what is currently advertised, and dump its next published frame.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootDir string

var rootCmd = &cobra.Command{
	Use:   "taoctl",
	Short: "Generic client for TAO remote objects",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "Configuration directory root (default: the package default, /tmp/tao)")
	rootCmd.AddCommand(listCmd, waitCmd, dumpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "taoctl: %v\n", err)
		os.Exit(1)
	}
}
