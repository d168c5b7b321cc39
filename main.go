package main

import "github.com/gigboard/flagcore/cmd"

func main() {
	cmd.Execute()
}
