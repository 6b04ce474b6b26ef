package main

import (
	"os"

	"github.com/harunnryd/clinirelay/cmd/clinirelay/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
