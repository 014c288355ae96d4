package main

import (
	"os"

	"github.com/raptor-audit/cairo-parser/internal/app"
)

func main() {
	if err := app.BuildRoot().Execute(); err != nil {
		os.Exit(1)
	}
}
