package main

import "github.com/OpenTraceLab/iprec/cmd/iprec/cmd"

func main() {
	cmd.Execute()
}
