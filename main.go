package main

import (
	"os"

	"github.com/Chinzzii/wpvulscan/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
