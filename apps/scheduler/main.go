package main

import (
	"github.com/smallbiznis/payrecon/internal/bootstrap"
	"go.uber.org/fx"
)

// The scheduler runs on the engine alone; it has no HTTP listener.
func main() {
	app := fx.New(bootstrap.Scheduler())
	app.Run()
}
