package main

import (
	"github.com/smallbiznis/payrecon/internal/bootstrap"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(bootstrap.API())
	app.Run()
}
