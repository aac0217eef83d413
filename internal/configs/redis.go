package config

import (
	"log"

	"github.com/redis/rueidis"
)

// NewRedisClient builds the rueidis client backing the distributed job locks.
// An unreachable or malformed address is fatal at startup.
func NewRedisClient(addr string) rueidis.Client {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		log.Fatalf("failed to connect to redis at %s: %v", addr, err)
	}
	return client
}
