/*
Copyright 2025 Paradrop Labs
*/
package main

import (
	"github.com/leilei1881/Paradrop/cmd"
)

func main() {
	cmd.Execute()
}
