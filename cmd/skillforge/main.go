package main

import "github.com/initializ/skillforge/cmd/skillforge/cmd"

func main() {
	cmd.Execute()
}
