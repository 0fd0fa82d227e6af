//go:build tinygo

package main

import (
	_ "embed"

	"tickos/app"
	"tickos/hal"
)

//go:generate go run ./cmd/mkapps -builtin all -out apps.bin

//go:embed apps.bin
var apps []byte

func main() {
	app.Boot(hal.New(), apps, app.Config{})
}
