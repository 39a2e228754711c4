package main

import "github.com/curaious/warden/cmd"

func main() {
	cmd.Execute()
}
