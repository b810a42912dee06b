package main

import (
	"os"

	"github.com/guilhermegouw/storyloom/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
