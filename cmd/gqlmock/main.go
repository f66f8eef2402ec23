package main

import (
	"github.com/movio/gqlmock"
	_ "github.com/movio/gqlmock/plugins"
)

func main() {
	gqlmock.Main()
}
