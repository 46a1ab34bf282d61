package main

import (
	cmd "github.com/rohmanhakim/webcrawler/internal/cli"
)

func main() {
	cmd.Execute()
}
