package main

import (
	"os"

	"scenequeue/internal/scqcli"
)

func main() {
	if err := scqcli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
