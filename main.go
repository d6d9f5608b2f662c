package main

import "github.com/hbomb79/Reel/cmd"

func main() {
	cmd.Execute()
}
