package main

import (
	"github.com/luma/tvremote/cmd"
)

func main() {
	cmd.Execute()
}
