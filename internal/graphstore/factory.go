package graphstore

import (
	"log"

	"github.com/emorobcare/companion/internal/config"
)

// NewStore picks a backend from configuration: Fuseki when FUSEKI_URL is
// set, in-memory otherwise.
func NewStore(cfg config.Config) Store {
	if cfg.FusekiURL != "" {
		log.Printf("graphstore: using fuseki dataset %q at %s", cfg.FusekiDataset, cfg.FusekiURL)
		return NewFusekiStore(cfg.FusekiURL, cfg.FusekiDataset, cfg.FusekiTimeout)
	}
	log.Printf("graphstore: using in-memory store")
	return NewInMemoryStore()
}
