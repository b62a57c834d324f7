package main

import (
	"log"

	"github.com/QuangSon1901/ecount-integration-sub001/cmd/ecountctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
