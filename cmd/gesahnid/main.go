package main

import (
	"log"

	"github.com/7L7K/GesahniV2-sub005/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
