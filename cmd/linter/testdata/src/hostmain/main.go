package main

import (
	"log"
	"os"
	"runtime"
)

func main() {
	if len(os.Args) > 3 {
		log.Fatal("too many arguments")
	}
	runtime.GC() // want "found usage of runtime.GC, the host owns collection"
	helper()
	os.Exit(0)
}

func helper() {
	log.Fatalln("helper") // want "found usage of log.Fatalln outside of main function"
}
