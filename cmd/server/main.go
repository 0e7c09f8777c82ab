package main

import "github.com/eleven-am/brivva-dataplane/internal/bootstrap"

func main() {
	bootstrap.Run()
}
