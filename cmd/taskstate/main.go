package main

import "github.com/jvs-project/taskstate/internal/cli"

func main() {
	cli.Execute()
}
