package main

import "github.com/brensch/figcoco/cmd"

func main() {
	cmd.Execute()
}
