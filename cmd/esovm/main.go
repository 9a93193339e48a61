package main

import (
	"go.brendoncarroll.net/star"

	"esovm.org/esovm/esocmd"
)

func main() {
	star.Main(esocmd.Root())
}
