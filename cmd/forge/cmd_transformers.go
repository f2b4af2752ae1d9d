package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"classforge/internal/transform"
)

// transformersCmd lists the registered transformers
var transformersCmd = &cobra.Command{
	Use:   "transformers",
	Short: "List the available transformers",
	RunE:  runTransformers,
}

func runTransformers(cmd *cobra.Command, args []string) error {
	for _, name := range transform.Names() {
		fmt.Println(name)
	}
	return nil
}
