package main

import (
	"smartrouter/cmd/cmd"
	"smartrouter/internal/logger"
)

func main() {
	logger.Init()
	cmd.Execute()
}
