package main

import (
	"github.com/placegraph/backend/internal/server"
	"github.com/placegraph/backend/internal/util"
	"github.com/placegraph/backend/pkg/logger"
	"github.com/placegraph/backend/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}
