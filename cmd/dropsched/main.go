package main

import "github.com/example/dropsched/cmd"

func main() {
	cmd.Execute()
}
