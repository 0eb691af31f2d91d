package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"
)

// Dev tool: a local endpoint for workflow webhook actions. Point a workflow's
// webhook URL here and watch the payloads arrive.
func main() {
	var (
		addr   = flag.String("addr", getenv("ADDR", ":9090"), "listen address")
		status = flag.Int("status", 200, "status code to respond with (use 500 to test failure handling)")
	)
	flag.Parse()

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			fmt.Printf("%s %s %s: invalid json: %v\n", time.Now().UTC().Format(time.RFC3339), r.Method, r.URL.Path, err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		pretty, _ := json.MarshalIndent(payload, "", "  ")
		fmt.Printf("%s %s %s\n%s\n", time.Now().UTC().Format(time.RFC3339), r.Method, r.URL.Path, pretty)
		w.WriteHeader(*status)
	})

	fmt.Printf("webhook sink listening on %s (responding %d)\n", *addr, *status)
	if err := http.ListenAndServe(*addr, nil); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
