package main

import "github.com/twiced-technology-gmbh/ralphy/cmd"

func main() {
	cmd.Execute()
}
