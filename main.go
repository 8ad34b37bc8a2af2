package main

import (
	"echoheritage/cmd"
)

func main() {
	cmd.Execute()
}
