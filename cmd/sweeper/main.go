// cmd/sweeper/main.go
//
// Periodically expires rooms older than the retention window and archives
// them to postgres when configured. Runs alongside the server as a separate
// process so a restart of either does not affect the other.
package main

import (
	"context"
	"log"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/elemduel/elemduel/internal/database"
	"github.com/elemduel/elemduel/internal/duel"
	"github.com/elemduel/elemduel/internal/room"
	"github.com/elemduel/elemduel/internal/store"
)

const sweepInterval = time.Hour

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	st, err := store.ConnectRedis()
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}

	if os.Getenv("PG_HOST") != "" {
		if err := database.Connect(); err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		if err := database.EnsureSchema(context.Background()); err != nil {
			log.Fatalf("failed to ensure schema: %v", err)
		}
	}

	rooms := room.NewManager(st, duel.NewRng(), logger)
	rooms.OnExpired = func(r room.Room) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		database.ArchiveExpiredRoom(ctx, r.ID, time.UnixMilli(r.CreatedAt), len(r.MemberIDs))
	}

	logger.Infof("Sweeping every %s, expiring rooms older than %s", sweepInterval, rooms.MaxAge)

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		n, err := rooms.Sweep(context.Background())
		if err != nil {
			logger.Warnf("sweep failed: %v", err)
		} else if n > 0 {
			logger.Infof("expired %d room(s)", n)
		}
		<-ticker.C
	}
}
