package main

//go:generate swag init -g cmd/dashboard/main.go -o docs

// @title           Credit Guild Dashboard API
// @version         0.1.0
// @description     Indexer snapshots, read-after-write sync and auction pricing curves for Credit Guild lending markets.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
