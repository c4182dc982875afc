package main

import (
	"log"

	"github.com/pbaumgart/loupe/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		log.Fatalf("loupe: %v", err)
	}
}
