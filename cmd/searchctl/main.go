// Command searchctl queries and inspects an index from the command line.
package main

import (
	"os"

	"github.com/amitco96/Information-Retrieval/cmd/searchctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
