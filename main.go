package main

import "lms-agent/cmd"

func main() {
	cmd.Execute()
}
