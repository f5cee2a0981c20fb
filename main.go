package main

import "livecat/cmd"

func main() {
	cmd.Execute()
}
