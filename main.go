package main

import "splitrelay/cmd"

func main() {
	cmd.Execute()
}
