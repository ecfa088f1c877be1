package main

import "duskdb/cmd"

func main() {
	cmd.Execute()
}
