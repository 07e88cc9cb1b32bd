// Copyright 2025 Certen Protocol
//
package main

import (
	"github.com/bftledger/node/cmd/ledgerd"
)

func main() {
	ledgerd.Execute()
}
