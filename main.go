package main

import "github.com/kiesman99/scrollstitch/cmd"

func main() {
	cmd.Execute()
}
