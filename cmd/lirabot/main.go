// Command lirabot runs the LiraKu IDR/TRY exchange bot.
package main

import (
	"log"

	corecmd "github.com/liraku/lirabot/core/cmd"
	"github.com/liraku/lirabot/internal/app"
)

func main() {
	if err := corecmd.Run(app.Options()); err != nil {
		log.Fatal(err)
	}
}
