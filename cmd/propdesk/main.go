package main

import (
	"os"

	"prop-challenge-go/cmd/propdesk/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
