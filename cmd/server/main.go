// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/elemduel/elemduel/internal/auth"
	"github.com/elemduel/elemduel/internal/database"
	"github.com/elemduel/elemduel/internal/duel"
	"github.com/elemduel/elemduel/internal/handlers"
	"github.com/elemduel/elemduel/internal/middleware"
	"github.com/elemduel/elemduel/internal/room"
	"github.com/elemduel/elemduel/internal/store"
)

func main() {
	auth.Init()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	st, err := store.ConnectRedis()
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}

	// Postgres archiving is optional; the game runs entirely off the record
	// store when PG_HOST is unset.
	if os.Getenv("PG_HOST") != "" {
		if err := database.Connect(); err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		if err := database.EnsureSchema(context.Background()); err != nil {
			log.Fatalf("failed to ensure schema: %v", err)
		}
	}

	rooms := room.NewManager(st, duel.NewRng(), logger)
	srv := handlers.NewServer(st, rooms, logger)

	mux := http.NewServeMux()

	mux.Handle("/rooms/create", middleware.LogMiddleware(logger)(http.HandlerFunc(
		srv.CreateRoomHandler,
	)))
	mux.Handle("/rooms/", middleware.LogMiddleware(logger)(http.HandlerFunc(
		srv.RoomInfoHandler,
	)))

	// duel websocket
	mux.Handle("/duel/ws/", middleware.LogMiddleware(logger)(http.HandlerFunc(
		srv.DuelWSHandler,
	)))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
