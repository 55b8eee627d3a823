package main

import (
	"os"

	"github.com/simon020286/go-datahub/cmd"
)

func main() {
	rootCmd := cmd.NewDatahubCommand()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
