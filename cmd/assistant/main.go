package main

import (
	"os"

	"github.com/ashureev/portfolio-assistant/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
