package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bitmark-inc/exitwithstatus"
	"github.com/bitmark-inc/getoptions"
	"golang.org/x/time/rate"

	"github.com/VanDung-dev/HieraChain-Relay/hierachain-relay/network"
	"github.com/VanDung-dev/HieraChain-Relay/hierachain-relay/protocol"
)

// SimConfig holds configuration for the simulation.
type SimConfig struct {
	Address    string
	Peers      int
	Queries    int
	Rate       float64
	MaxLength  int
	Wait       time.Duration
	ReportFile string
	Announce   bool
	Heartbeat  time.Duration
}

// SimResult holds the results of a simulation run.
type SimResult struct {
	Queries        int64
	Answered       int64
	Correct        int64
	Announcements  int64
	TotalDuration  time.Duration
	AvgLatency     time.Duration
	MinLatency     time.Duration
	MaxLatency     time.Duration
	P99Latency     time.Duration
	QueriesPerSec  float64
	LongestAnswers map[int]int64
}

func main() {
	defer exitwithstatus.Handler()

	config := parseOptions()

	fmt.Println("=== HieraChain Relay Peer Simulation ===")
	fmt.Printf("Target:   %s\n", config.Address)
	fmt.Printf("Peers:    %d\n", config.Peers)
	fmt.Printf("Queries:  %d at %.1f/s\n", config.Queries, config.Rate)
	fmt.Println()

	result, err := runSimulation(config)
	if err != nil {
		exitwithstatus.Message("peersim: %s", err)
	}

	printResults(result)

	if config.ReportFile != "" {
		saveReport(config, result)
	}
}

func parseOptions() SimConfig {
	flags := []getoptions.Option{
		{Long: "help", HasArg: getoptions.NO_ARGUMENT, Short: 'h'},
		{Long: "connect", HasArg: getoptions.REQUIRED_ARGUMENT, Short: 'c'},
		{Long: "peers", HasArg: getoptions.REQUIRED_ARGUMENT, Short: 'n'},
		{Long: "queries", HasArg: getoptions.REQUIRED_ARGUMENT, Short: 'q'},
		{Long: "rate", HasArg: getoptions.REQUIRED_ARGUMENT, Short: 'r'},
		{Long: "max-length", HasArg: getoptions.REQUIRED_ARGUMENT, Short: 'm'},
		{Long: "wait", HasArg: getoptions.REQUIRED_ARGUMENT, Short: 'w'},
		{Long: "announce", HasArg: getoptions.NO_ARGUMENT, Short: 'a'},
		{Long: "output", HasArg: getoptions.REQUIRED_ARGUMENT, Short: 'o'},
	}

	program, options, _, err := getoptions.GetOS(flags)
	if nil != err {
		exitwithstatus.Message("%s: getoptions error: %s", program, err)
	}

	if len(options["help"]) > 0 {
		exitwithstatus.Message("usage: %s [--connect=tcp://HOST:PORT] [--peers=N] [--queries=N] [--rate=PER_SECOND] [--max-length=N] [--wait=DURATION] [--announce] [--output=FILE]", program)
	}

	config := SimConfig{
		Address:   "tcp://127.0.0.1:3001",
		Peers:     5,
		Queries:   100,
		Rate:      10,
		MaxLength: 20,
		Wait:      35 * time.Second,
		Heartbeat: 5 * time.Second,
	}

	if v := last(options["connect"]); v != "" {
		config.Address = v
	}
	if v := last(options["peers"]); v != "" {
		config.Peers = mustInt(program, "peers", v)
	}
	if v := last(options["queries"]); v != "" {
		config.Queries = mustInt(program, "queries", v)
	}
	if v := last(options["rate"]); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r <= 0 {
			exitwithstatus.Message("%s: invalid rate: %q", program, v)
		}
		config.Rate = r
	}
	if v := last(options["max-length"]); v != "" {
		config.MaxLength = mustInt(program, "max-length", v)
	}
	if v := last(options["wait"]); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			exitwithstatus.Message("%s: invalid wait: %q", program, v)
		}
		config.Wait = d
	}
	config.Announce = len(options["announce"]) > 0
	config.ReportFile = last(options["output"])

	if config.Peers < 1 {
		exitwithstatus.Message("%s: at least one peer is required", program)
	}

	return config
}

func last(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[len(values)-1]
}

func mustInt(program string, name string, value string) int {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		exitwithstatus.Message("%s: invalid %s: %q", program, name, value)
	}
	return n
}

// responder answers every chain query with a chain of random length and
// counts the announcements it sees.
func responder(ctx context.Context, client *network.PeerClient, maxLength int, lengths *sync.Map, announcements *int64) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-client.Messages():
			switch msg.Kind {
			case protocol.GetChainRequest:
				n := rng.Intn(maxLength + 1)
				chain := make([]json.RawMessage, n)
				for i := range chain {
					chain[i] = json.RawMessage(fmt.Sprintf(`{"index":%d,"peer":%q}`, i, client.ID()))
				}

				// keep the longest length offered so the answer can be checked
				for {
					prev, loaded := lengths.LoadOrStore(msg.CorrelationID, n)
					if !loaded || prev.(int) >= n || lengths.CompareAndSwap(msg.CorrelationID, prev, n) {
						break
					}
				}

				_ = client.Send(protocol.NewChainResponse(msg.CorrelationID, chain))
			case protocol.NewBlockAnnouncement, protocol.NewBlockRequest:
				atomic.AddInt64(announcements, 1)
			}
		}
	}
}

func runSimulation(config SimConfig) (SimResult, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clients := make([]*network.PeerClient, config.Peers)
	for i := range clients {
		clients[i] = network.NewPeerClient(fmt.Sprintf("sim-%d", i), config.Address, config.Heartbeat)
		if err := clients[i].Dial(); err != nil {
			return SimResult{}, err
		}
		defer clients[i].Close()
	}

	var (
		announcements int64
		lengths       sync.Map
		wg            sync.WaitGroup
	)
	for _, c := range clients[1:] {
		wg.Add(1)
		go func(c *network.PeerClient) {
			defer wg.Done()
			responder(ctx, c, config.MaxLength, &lengths, &announcements)
		}(c)
	}

	// let the hub see every hello before the first query
	time.Sleep(200 * time.Millisecond)

	asker := clients[0]
	started := make(map[string]time.Time, config.Queries)
	var mu sync.Mutex

	limiter := rate.NewLimiter(rate.Limit(config.Rate), 1)
	startTime := time.Now()

	go func() {
		for i := 0; i < config.Queries; i++ {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			id := fmt.Sprintf("q-%d-%d", startTime.UnixNano(), i)

			mu.Lock()
			started[id] = time.Now()
			mu.Unlock()

			_ = asker.Send(protocol.NewChainRequest(id))
			if config.Announce {
				_ = asker.Send(protocol.NewBlockMessage(protocol.NewBlockAnnouncement, id, json.RawMessage(`{"index":0}`)))
			}
		}
	}()

	var (
		latencies []time.Duration
		correct   int64
		histogram = make(map[int]int64)
	)

	deadline := time.After(time.Duration(float64(config.Queries)/config.Rate*float64(time.Second)) + config.Wait)

collect:
	for len(latencies) < config.Queries {
		select {
		case msg := <-asker.Messages():
			if msg.Kind != protocol.GetChainResponse {
				continue
			}
			mu.Lock()
			at, ok := started[msg.CorrelationID]
			delete(started, msg.CorrelationID)
			mu.Unlock()
			if !ok {
				continue
			}

			latencies = append(latencies, time.Since(at))
			histogram[msg.Len()]++

			if expected, ok := lengths.Load(msg.CorrelationID); !ok || expected.(int) == msg.Len() {
				correct++
			}
		case <-deadline:
			break collect
		}
	}

	duration := time.Since(startTime)
	cancel()
	wg.Wait()

	result := SimResult{
		Queries:        int64(config.Queries),
		Answered:       int64(len(latencies)),
		Correct:        correct,
		Announcements:  atomic.LoadInt64(&announcements),
		TotalDuration:  duration,
		QueriesPerSec:  float64(len(latencies)) / duration.Seconds(),
		LongestAnswers: histogram,
	}

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		result.AvgLatency = sum / time.Duration(len(latencies))
		result.MinLatency = latencies[0]
		result.MaxLatency = latencies[len(latencies)-1]
		result.P99Latency = latencies[(len(latencies)*99)/100]
	}

	return result, nil
}

func printResults(result SimResult) {
	fmt.Println("=== Results ===")
	fmt.Printf("Duration:        %v\n", result.TotalDuration.Round(time.Millisecond))
	fmt.Printf("Queries:         %d\n", result.Queries)
	if result.Queries > 0 {
		fmt.Printf("Answered:        %d (%.2f%%)\n", result.Answered, float64(result.Answered)/float64(result.Queries)*100)
	}
	fmt.Printf("Longest chosen:  %d of %d\n", result.Correct, result.Answered)
	fmt.Printf("Announcements:   %d\n", result.Announcements)
	fmt.Printf("Answers/sec:     %.2f\n", result.QueriesPerSec)
	fmt.Printf("Avg Latency:     %v\n", result.AvgLatency.Round(time.Microsecond))
	fmt.Printf("Min Latency:     %v\n", result.MinLatency.Round(time.Microsecond))
	fmt.Printf("Max Latency:     %v\n", result.MaxLatency.Round(time.Microsecond))
	fmt.Printf("P99 Latency:     %v\n", result.P99Latency.Round(time.Microsecond))
}

func saveReport(config SimConfig, result SimResult) {
	report := map[string]interface{}{
		"config": map[string]interface{}{
			"address":    config.Address,
			"peers":      config.Peers,
			"queries":    config.Queries,
			"rate":       config.Rate,
			"max_length": config.MaxLength,
		},
		"results": map[string]interface{}{
			"answered":        result.Answered,
			"longest_chosen":  result.Correct,
			"announcements":   result.Announcements,
			"answers_per_sec": result.QueriesPerSec,
			"avg_latency_ms":  float64(result.AvgLatency.Microseconds()) / 1000,
			"min_latency_ms":  float64(result.MinLatency.Microseconds()) / 1000,
			"max_latency_ms":  float64(result.MaxLatency.Microseconds()) / 1000,
			"p99_latency_ms":  float64(result.P99Latency.Microseconds()) / 1000,
			"answer_lengths":  result.LongestAnswers,
		},
		"timestamp": time.Now().Format(time.RFC3339),
	}

	data, _ := json.MarshalIndent(report, "", "  ")
	if err := os.WriteFile(config.ReportFile, data, 0644); err != nil {
		fmt.Printf("Failed to write report: %v\n", err)
	} else {
		fmt.Printf("Report saved to: %s\n", config.ReportFile)
	}
}
