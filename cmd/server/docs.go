package main

//go:generate swag init -g cmd/server/main.go -o docs

// @title           Hypertoken API
// @version         0.1.0
// @description     Hyperliquid spot token metadata and sync controls.
// @host            localhost:3000
// @BasePath        /
// @schemes         http
