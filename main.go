package main

import (
	"fmt"
	"os"

	"gmab/cmd"
	"gmab/internal/logging"
)

func main() {
	if err := logging.InitLogger(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		// stderr cannot always be synced; nothing useful to do about it
		_ = logging.Sync()
	}()

	cmd.Execute()
}
