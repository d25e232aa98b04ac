package main

import "github.com/jmendel/idb/cmd"

func main() {
	cmd.Execute()
}
