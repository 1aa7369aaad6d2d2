package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"agromarket/internal/cache"
	"agromarket/internal/config"
	"agromarket/internal/database"
)

// dbcheck verifies that Postgres and Redis are reachable with the current
// configuration, exiting non-zero on the first failure.
func main() {
	cfg, _ := config.Load()
	dbConn := flag.String("db", cfg.DatabaseURL, "Database connection string")
	redisAddr := flag.String("redis", cfg.RedisAddr, "Redis address, empty to skip")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	db, err := database.InitDB(ctx, *dbConn)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Database connection failed:", err)
		os.Exit(1)
	}
	defer db.Close()
	fmt.Println("Successfully connected to the database, schema is up to date")

	if *redisAddr == "" {
		return
	}
	if err := cache.InitRedis(ctx, *redisAddr); err != nil {
		fmt.Fprintln(os.Stderr, "Redis connection failed:", err)
		os.Exit(1)
	}
	fmt.Println("Successfully connected to Redis")
}
