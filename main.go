package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/raggy-ai/raggy/cmd"
)

func main() {
	// A missing .env is fine; real deployments inject the environment.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
