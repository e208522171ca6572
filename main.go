package main

import "github.com/FluidXR/mirrordeck/cmd"

func main() {
	cmd.Execute()
}
