// Package main 提供 secretmesh 命令行入口
package main

import (
	"fmt"
	"os"

	"github.com/dep2p/go-secretmesh/cmd/secretmesh/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
