package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	appLog "blairboard/internal/log"
)

func main() {
	// A .env file is optional.
	if err := godotenv.Load(); err != nil {
		appLog.Debug("no .env loaded", "err", err)
	}

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
