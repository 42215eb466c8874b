// Command pmrag indexes project-management records and reference documents
// for grounded retrieval. It provides a CLI (via Cobra) and an HTTP server
// that chat and reporting services call in-process.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/54b3r/pmrag-go/cmd/pmrag/commands"
)

func main() {
	if err := commands.Execute(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
