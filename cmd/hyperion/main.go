package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/hyperion-cluster/hyperion/internal/logging"
)

var version = "dev"

func main() {
	logging.Setup()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: hyperion [master|slave|version] [flags]")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "master":
		if err := runMaster(os.Args[2:]); err != nil {
			slog.Error("fatal", "error", err)
			os.Exit(1)
		}
	case "slave":
		if err := runSlave(os.Args[2:]); err != nil {
			slog.Error("fatal", "error", err)
			os.Exit(1)
		}
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "usage: hyperion [master|slave|version] [flags]\n")
		os.Exit(1)
	}
}
