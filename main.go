package main

import (
	"salesflow/core/logger"
	"salesflow/core/server"
)

func main() {
	defer logger.Sync()
	if err := server.Run(); err != nil {
		logger.Error("Main:Run:Error", "error", err)
	}
}
