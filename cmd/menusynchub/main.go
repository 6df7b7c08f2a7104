package main

import (
	"flag"
	"log"
	"net/http"

	"menusync/internal/hub"
)

func main() {
	listen := flag.String("listen", ":9200", "listen address")
	flag.Parse()

	h := hub.New()
	log.Printf("hub listening on %s", *listen)
	if err := http.ListenAndServe(*listen, h.Handler()); err != nil {
		log.Fatalf("hub: %v", err)
	}
}
