package main

import (
	"github.com/parasim/parasim/cmd"
)

func main() {
	cmd.Execute()
}
