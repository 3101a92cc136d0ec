package main

import (
	"github.com/joho/godotenv"

	"github.com/fleetlog/telemetryhub/api/cmd/ingestd"
)

func main() {
	_ = godotenv.Load()
	ingestd.Execute()
}
