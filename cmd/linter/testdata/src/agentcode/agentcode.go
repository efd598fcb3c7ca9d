package agentcode

import (
	"log"
	"os"
	"runtime"
)

type exiter struct{}

func (exiter) Exit(int) {}

func sample() {
	panic("sampling failed") // want "found usage of panic"
}

func stop() {
	log.Fatalf("stopping: %d", 1) // want "found usage of log.Fatalf outside of main function"
	os.Exit(1)                    // want "found usage of os.Exit outside of main function"
}

func collect() {
	runtime.GC() // want "found usage of runtime.GC, the host owns collection"
}

func safe() {
	var os exiter
	os.Exit(1)
	runtime.Gosched()
	log.Println("fine")
}
