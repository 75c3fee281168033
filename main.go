package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/DavidCapener182/incommand-sub013/core/appbootstrap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := appbootstrap.Run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
