package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

func main() {
	redisURL := os.Getenv("REDIS_URL")
	databaseURL := os.Getenv("DATABASE_URL")

	if redisURL == "" {
		log.Fatal("REDIS_URL is required")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("redis url error: %v", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("redis ping error: %v", err)
	} else {
		log.Printf("redis ok: %s", opts.Addr)
	}

	keys, err := rdb.Keys(ctx, "arena:*").Result()
	if err != nil {
		log.Printf("redis keys error: %v", err)
	} else {
		log.Printf("arena keys: %d", len(keys))
	}
	_ = rdb.Close()

	if databaseURL == "" {
		log.Println("DATABASE_URL not set; skipping postgres check")
		return
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		log.Fatalf("postgres open error: %v", err)
	}
	defer db.Close()

	pctx, pcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pcancel()
	if err := db.PingContext(pctx); err != nil {
		log.Printf("postgres ping error: %v", err)
		return
	}

	var players int
	if err := db.QueryRowContext(pctx, "SELECT COUNT(*) FROM arena_ratings").Scan(&players); err != nil {
		log.Printf("postgres query error (schema missing?): %v", err)
		return
	}
	log.Printf("postgres ok: %d rated players", players)
}
