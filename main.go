package main

import "github.com/skaphos/forksmith/cmd/forksmith"

var execute = forksmith.Execute

func main() {
	execute()
}
