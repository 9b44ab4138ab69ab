package main

import (
	_ "time/tzdata"

	"github.com/fatali-fataliyev/budget_watch/internal/cli"
)

func main() {
	cli.Execute()
}
