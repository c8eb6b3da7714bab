package main

import (
	"os"

	"github.com/codeqa/codeqa/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
