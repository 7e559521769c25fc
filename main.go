// main is the entry point for the fromcvs CLI.
package main

import (
	"github.com/seanfarley/fromcvs/cmd"
	"github.com/seanfarley/fromcvs/internal/contract"
)

func main() {
	if err := cmd.Execute(); err != nil {
		contract.LogFatal("Error starting CLI", err)
	}
	if err := cmd.StopProfiling(); err != nil {
		contract.LogWarn("Failed to stop profiling", err)
	}
}
