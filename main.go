package main

import "github.com/theirongolddev/timetray/cmd"

func main() {
	cmd.Execute()
}
