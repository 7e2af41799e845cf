package main

import (
	"os"

	"github.com/kbhalerao/codesmriti/cmd/codesmriti/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
