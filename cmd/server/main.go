package main

import (
	"log"

	"github.com/nisheshk/durable-chatbot/internal/config"
	"github.com/nisheshk/durable-chatbot/internal/db"
	"github.com/nisheshk/durable-chatbot/internal/httpapi"
	"github.com/nisheshk/durable-chatbot/internal/queue"
	"github.com/nisheshk/durable-chatbot/internal/store"
	"github.com/nisheshk/durable-chatbot/internal/store/redisstore"
)

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN, cfg.DBPoolSize, cfg.DBMaxOverflow)

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()

	gw := store.NewGateway(gdb, rds)

	pub, err := queue.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatalf("rabbit publisher: %v", err)
	}
	defer pub.Close()

	r := httpapi.NewRouter(cfg, gw, pub)

	log.Printf("server listening addr=%s queue=%s", cfg.HTTPAddr, cfg.RabbitQueue)
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
