package main

import (
	"os"

	"bq-operator/cli"
)

func main() {
	os.Exit(cli.Execute())
}
