package main

import (
	"fmt"
	"os"

	"github.com/catalogfi/swapper"
)

func main() {
	if err := swapper.Run(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
