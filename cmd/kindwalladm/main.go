package main

import (
	"fmt"
	"os"

	"github.com/lherron/kindwall/internal/cli"
)

func main() {
	err := cli.ExecuteAdmin()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(cli.ExitCode(err))
}
