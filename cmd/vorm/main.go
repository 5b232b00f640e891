// Command vorm applies SQL migrations for vorm models.
package main

import (
	"fmt"
	"os"

	"github.com/syssam/vorm/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
