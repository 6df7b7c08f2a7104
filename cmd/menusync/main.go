package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"menusync/internal/config"
	"menusync/internal/node"
	"menusync/internal/protocol"
)

func main() {
	cfg := config.Default()
	fs := flag.NewFlagSet("menusync", flag.ExitOnError)
	cfg.RegisterFlags(fs)
	frame := fs.Duration("status-interval", 1*time.Second, "status printout interval")
	_ = fs.Parse(os.Args[1:])

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	id := cfg.PeerID
	if id == "" {
		id = protocol.NewPeerID()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := node.New(cfg, id)
	if err := n.Start(ctx); err != nil {
		log.Fatalf("start node: %v", err)
	}
	defer n.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Stand-in for the rendering layer: read the frame tuple on a timer
	// and print it. A real display drives this from its frame loop.
	ticker := time.NewTicker(*frame)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			log.Printf("[%s] shutting down", id)
			return
		case <-ticker.C:
			printStatus(n.Status())
		}
	}
}

func printStatus(s node.Status) {
	fmt.Printf("pos=%.3f peers=%d/%d", s.Position, s.PeerCount, s.TotalPeers)
	for _, p := range s.Peers {
		state := "up"
		if p.Disconnected {
			state = "lingering"
		}
		fmt.Printf(" [%s %s %s %v]", p.ID, p.Direction, state, p.Latency.Round(time.Millisecond))
	}
	if s.LastSync != nil {
		fmt.Printf(" last-sync=%s@%.3f", s.LastSync.SourcePeerID, s.LastSync.Position)
	}
	fmt.Println()
}
