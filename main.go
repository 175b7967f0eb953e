package main

import (
	"os"

	"github.com/jobify-ml/skillner/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
