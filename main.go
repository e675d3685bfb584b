package main

import (
	"evpool/server"
	"log"
)

func main() {

	poolSystem, err := server.NewPoolSystem()
	if err != nil {
		log.Println("pool system initialization failed", err)
		return
	}
	poolSystem.Start()

}
