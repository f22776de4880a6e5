package main

import (
	"os"

	"github.com/dshills/rulebot/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
