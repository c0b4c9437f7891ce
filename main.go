package main

import (
	"log"

	"github.com/sahilchouksey/school-backoffice/app"
)

func main() {
	// setup and run app
	if err := app.SetupAndRunServer(); err != nil {
		log.Fatal(err)
	}
}
