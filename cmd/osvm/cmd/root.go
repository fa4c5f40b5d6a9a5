// Package cmd provides the command-line interface of osvm.
package cmd

import (
	"errors"
	"io/fs"
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "osvm",
	Short: "osvm runs workloads against a model of a teaching kernel's VM.",
	Long: `osvm models the virtual memory system of a teaching kernel: ` +
		`a coremap, a flat page table, a swap file, and a software-managed ` +
		`TLB. It runs processes against it and reports what happened.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return loadEnv(envFile)
	},
}

var envFile string

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env",
		"File to read OSVM_* settings from")
}

// loadEnv reads settings from a dotenv file. A missing file is not an error,
// and variables already set take precedence.
func loadEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return err
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		log.Print(err)
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
