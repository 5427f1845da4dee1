package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nisheshk/durable-chatbot/internal/capability"
	"github.com/nisheshk/durable-chatbot/internal/config"
	"github.com/nisheshk/durable-chatbot/internal/convo"
	"github.com/nisheshk/durable-chatbot/internal/db"
	"github.com/nisheshk/durable-chatbot/internal/orchestrator"
	"github.com/nisheshk/durable-chatbot/internal/queue"
	"github.com/nisheshk/durable-chatbot/internal/store"
	"github.com/nisheshk/durable-chatbot/internal/store/redisstore"
)

// shouldRequeue reports whether a failed submit goes back on the main queue
// rather than the DLQ. Backpressure and shutdown are not message faults; the
// next worker should see those messages again.
func shouldRequeue(err error) bool {
	return errors.Is(err, convo.ErrMailboxFull) || errors.Is(err, context.Canceled)
}

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN, cfg.DBPoolSize, cfg.DBMaxOverflow)

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()

	gw := store.NewGateway(gdb, rds)

	chat := capability.NewChatClient(
		cfg.ChatBaseURL, cfg.ChatAPIKey, cfg.ChatModel,
		cfg.MaxTokens, cfg.Temperature, cfg.TopP, cfg.ChatTimeout,
	)
	web := capability.NewWebSearchClient(cfg.WebSearchBaseURL, cfg.WebSearchAPIKey, cfg.WebSearchTimeout)
	companies := capability.NewCompanySearchClient(
		cfg.DatabricksHost, cfg.DatabricksToken, cfg.DatabricksIndex,
		cfg.CompanyNumResults, cfg.CompanySearchTimeout,
	)

	orch := orchestrator.New(chat, web, companies, cfg.MaxConcurrentCapabilityCalls, orchestrator.Timeouts{
		Chat:          cfg.ChatTimeout,
		WebSearch:     cfg.WebSearchTimeout,
		CompanySearch: cfg.CompanySearchTimeout,
	})

	sup := convo.NewSupervisor(gw, orch, convo.Config{
		InactivityTimeout:  cfg.InactivityTimeout,
		TurnTimeout:        cfg.TurnTimeout,
		SummaryTokenBudget: cfg.SummaryTokenBudget,
		KeepRecentTurns:    cfg.KeepRecentTurns,
		MailboxSize:        cfg.MailboxSize,
	})

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("rabbit dial: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbit channel: %v", err)
	}
	defer ch.Close()

	if err := queue.DeclareQueues(ch, cfg.RabbitQueue); err != nil {
		log.Fatalf("queue declare: %v", err)
	}

	concurrency := cfg.WorkerConcurrency
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("worker started, queue=%s concurrency=%d", cfg.RabbitQueue, concurrency)

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var sub queue.Submission
				if err := json.Unmarshal(d.Body, &sub); err != nil || sub.ConversationID == "" {
					log.Printf("worker=%d bad message: %v", workerID, err)
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				err := sup.Submit(ctx, sub.ConversationID, sub.Text)
				if err != nil {
					requeue := shouldRequeue(err)
					log.Printf("worker=%d submit failed conversation=%s submit=%s cost=%s requeue=%v err=%v",
						workerID, sub.ConversationID, sub.SubmitID, time.Since(start), requeue, err)
					_ = d.Nack(false, requeue)
					continue
				}

				if time.Since(start) > 2*time.Second {
					log.Printf("turn_timing conversation=%s submit=%s total=%s",
						sub.ConversationID, sub.SubmitID, time.Since(start))
				}
				if err := d.Ack(false); err != nil {
					log.Printf("worker=%d ack failed submit=%s err=%v", workerID, sub.SubmitID, err)
				}
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Printf("worker shutting down, active=%d", sup.ActiveConversations())
			close(jobs)
			wg.Wait()

			sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := sup.Shutdown(sctx); err != nil {
				log.Printf("supervisor shutdown: %v", err)
			}
			cancel()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Printf("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}
