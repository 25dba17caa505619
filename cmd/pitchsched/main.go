package main

import "github.com/example/pitch-scheduler/cmd"

func main() {
	cmd.Execute()
}
