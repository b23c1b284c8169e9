package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"sportsocial/services"
	"sportsocial/utils/log"

	"github.com/brianvoe/gofakeit/v7"
)

type Stats struct {
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	TotalDuration   int64
}

type Config struct {
	BaseURL        string
	Secret         string
	UserIDs        []string
	Workers        int
	Duration       int
	RequestCount   int
	RequestsPerSec int
}

var (
	stats Stats
	// посты, которые видели воркеры; по ним ставятся лайки и комментарии
	knownPosts sync.Map
)

func main() {
	config := parseFlags()
	log.InitLogger("load_client", "info", false)

	if config.Secret == "" || len(config.UserIDs) == 0 {
		log.Log.Fatal("-secret and -users are required")
	}
	log.Log.WithField("workers", config.Workers).WithField("users", len(config.UserIDs)).Info("Starting load client")

	tokens := make(map[string]string, len(config.UserIDs))
	decoder := services.NewJWTDecoder(config.Secret)
	for i, userID := range config.UserIDs {
		token, err := decoder.Sign(userID, fmt.Sprintf("load-client-%d", i))
		if err != nil {
			log.Log.WithError(err).Fatal("failed to sign token")
		}
		tokens[userID] = token
	}

	done := make(chan bool)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup

	requestsPerWorker := config.RequestsPerSec / config.Workers
	if requestsPerWorker == 0 {
		requestsPerWorker = 1
	}

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go worker(i, config, tokens, requestsPerWorker, done, &wg)
	}

	go printStats()

	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }
	if config.Duration > 0 {
		go func() {
			time.Sleep(time.Duration(config.Duration) * time.Second)
			stop()
		}()
	}

	go func() {
		<-sigChan
		log.Log.Info("Received interrupt signal, shutting down...")
		stop()
	}()

	wg.Wait()
	printFinalStats()
}

func parseFlags() Config {
	config := Config{}
	var users string

	flag.StringVar(&config.BaseURL, "url", "http://localhost:8080", "Service URL")
	flag.StringVar(&config.Secret, "secret", os.Getenv("JWT_SECRET"), "JWT secret used to sign user tokens")
	flag.StringVar(&users, "users", "", "Comma separated user ids with existing profiles")
	flag.IntVar(&config.Workers, "workers", 10, "Number of concurrent workers")
	flag.IntVar(&config.Duration, "duration", 60, "Test duration in seconds (0 for infinite)")
	flag.IntVar(&config.RequestCount, "requests", 0, "Total requests to send (0 for infinite)")
	flag.IntVar(&config.RequestsPerSec, "rps", 100, "Requests per second target")

	flag.Parse()
	for _, id := range strings.Split(users, ",") {
		if id = strings.TrimSpace(id); id != "" {
			config.UserIDs = append(config.UserIDs, id)
		}
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	return config
}

func worker(id int, config Config, tokens map[string]string, requestsPerSec int, done chan bool, wg *sync.WaitGroup) {
	defer wg.Done()

	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	ticker := time.NewTicker(time.Second / time.Duration(requestsPerSec))
	defer ticker.Stop()

	operations := []string{"create_post", "get_feed", "get_feed", "toggle_like", "add_comment", "unread_count"}

	for {
		select {
		case <-done:
			log.Log.WithField("worker", id).Debug("Worker stopping")
			return
		case <-ticker.C:
			if config.RequestCount > 0 && int(atomic.LoadInt64(&stats.TotalRequests)) >= config.RequestCount {
				return
			}

			userID := config.UserIDs[rand.Intn(len(config.UserIDs))]
			token := tokens[userID]
			operation := operations[rand.Intn(len(operations))]

			start := time.Now()
			var err error

			switch operation {
			case "create_post":
				err = createPost(client, config.BaseURL, token)
			case "get_feed":
				err = getFeed(client, config.BaseURL, token)
			case "toggle_like":
				if postID, ok := randomPost(); ok {
					err = doRequest(client, http.MethodPost, config.BaseURL+"/api/v1/posts/"+postID+"/likes", token, nil, nil)
				} else {
					err = getFeed(client, config.BaseURL, token)
				}
			case "add_comment":
				if postID, ok := randomPost(); ok {
					body := map[string]string{"content": "Great match in " + gofakeit.City()}
					err = doRequest(client, http.MethodPost, config.BaseURL+"/api/v1/posts/"+postID+"/comments", token, body, nil)
				} else {
					err = createPost(client, config.BaseURL, token)
				}
			case "unread_count":
				err = doRequest(client, http.MethodGet, config.BaseURL+"/api/v1/notifications/unread-count", token, nil, nil)
			}

			duration := time.Since(start)

			atomic.AddInt64(&stats.TotalRequests, 1)
			atomic.AddInt64(&stats.TotalDuration, duration.Milliseconds())

			if err != nil {
				atomic.AddInt64(&stats.FailedRequests, 1)
				log.Log.WithError(err).WithField("operation", operation).Debug("request failed")
			} else {
				atomic.AddInt64(&stats.SuccessRequests, 1)
			}
		}
	}
}

func createPost(client *http.Client, baseURL, token string) error {
	sectors := []string{"football", "tennis", "running", "basketball"}
	body := map[string]interface{}{
		"content": fmt.Sprintf("Training session in %s", gofakeit.City()),
		"sector":  sectors[rand.Intn(len(sectors))],
		"tags":    []string{"loadtest"},
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := doRequest(client, http.MethodPost, baseURL+"/api/v1/posts", token, body, &created); err != nil {
		return err
	}
	knownPosts.Store(created.ID, struct{}{})
	return nil
}

func getFeed(client *http.Client, baseURL, token string) error {
	var feed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := doRequest(client, http.MethodGet, baseURL+"/api/v1/posts?page=1&limit=20", token, nil, &feed); err != nil {
		return err
	}
	for _, p := range feed.Data {
		knownPosts.Store(p.ID, struct{}{})
	}
	return nil
}

func randomPost() (string, bool) {
	var ids []string
	knownPosts.Range(func(key, _ interface{}) bool {
		ids = append(ids, key.(string))
		return len(ids) < 200
	})
	if len(ids) == 0 {
		return "", false
	}
	return ids[rand.Intn(len(ids))], true
}

func doRequest(client *http.Client, method, url, token string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(data))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func snapshot() (total, success, failed, avgLatency int64, successRate float64) {
	total = atomic.LoadInt64(&stats.TotalRequests)
	success = atomic.LoadInt64(&stats.SuccessRequests)
	failed = atomic.LoadInt64(&stats.FailedRequests)
	totalDuration := atomic.LoadInt64(&stats.TotalDuration)
	if total > 0 {
		avgLatency = totalDuration / total
		successRate = float64(success) / float64(total) * 100
	}
	return
}

func printStats() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		total, success, failed, avgLatency, successRate := snapshot()
		log.Log.Infof("[STATS] Total: %d | Success: %d | Failed: %d | Success Rate: %.2f%% | Avg Latency: %dms",
			total, success, failed, successRate, avgLatency)
	}
}

func printFinalStats() {
	total, success, failed, avgLatency, successRate := snapshot()

	log.Log.Info("========== FINAL STATISTICS ==========")
	log.Log.Infof("Total Requests:     %d", total)
	log.Log.Infof("Successful:         %d", success)
	log.Log.Infof("Failed:             %d", failed)
	log.Log.Infof("Success Rate:       %.2f%%", successRate)
	log.Log.Infof("Average Latency:    %dms", avgLatency)
	log.Log.Info("======================================")
}
