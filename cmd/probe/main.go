package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"sandboxdemo/internal/core/health"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "host:port of the server to probe")
	timeout := flag.Duration("timeout", 5*time.Second, "probe timeout")
	flag.Parse()

	checker := health.New(*timeout)
	latency, serverTime, err := checker.Check(*addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "probe failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("ok: %s answered in %dms (server time %s)\n", *addr, latency, serverTime)
}
