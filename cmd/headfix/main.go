package main

import (
	"os"

	"github.com/fbolanos/AutoHeadFixFB/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
