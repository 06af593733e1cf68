package main

import "github.com/jmcleod/ironlatch/cmd/ironlatch/cmd"

func main() {
	cmd.Execute()
}
