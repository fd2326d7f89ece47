package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/RezaEskandarii/genjob/cmd/genjob/commands"
	"github.com/RezaEskandarii/genjob/types"
	"github.com/RezaEskandarii/genjob/types/config"
)

func main() {
	handlers := config.NewJobHandler()
	// echo completes with its payload; useful to smoke test a deployment.
	_ = handlers.Register("echo", func(ctx context.Context, job *types.Job) (json.RawMessage, error) {
		return job.Payload, nil
	})

	if err := commands.NewRootCmd(handlers).Execute(); err != nil {
		os.Exit(1)
	}
}
