// Command hornminer is the thin entrypoint for the Horn-rule KB-compression
// core. It wires a logger and the default config, leaves the Loader and
// Dumper unset, then hands off to internal/pipeline. Flag parsing, KB
// file-format I/O, and OS signal handling are a named external
// collaborator (spec.md §1) and are deliberately not implemented here.
package main

import (
	"os"

	"github.com/hashicorp/go-hclog"

	"github.com/TramsWang/sinc-go/internal/config"
	"github.com/TramsWang/sinc-go/internal/pipeline"
)

func main() {
	log := hclog.New(&hclog.LoggerOptions{
		Name:  "hornminer",
		Level: hclog.Info,
	})

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Loader/Dumper are left nil: the on-disk KB layout (spec.md §6) is the
	// external collaborator's concern, not this core's. pipeline.Run fails
	// fast with a clear diagnostic until a real pair is wired in.
	_, err := pipeline.Run(pipeline.Options{
		Config: cfg,
		Log:    log,
	})
	if err != nil {
		log.Error("run failed", "error", err)
		os.Exit(1)
	}
}
