package main

import (
	"fmt"
	"os"
)

var version = "0.1.0-dev"

func main() {
	if err := Execute(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "palm2ical: %s\n", err.Error())
		os.Exit(1)
	}
}
