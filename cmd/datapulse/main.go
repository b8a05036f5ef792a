package main

import (
	"os"

	"datapulse/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
