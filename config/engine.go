package config

import (
	"log"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	engineOnce   sync.Once
	engineConfig *EngineConfig
)

// EngineConfig is the tuning surface of the lineage engine. Values come from
// defaults, then an optional engine.yaml (path in LINEAGE_CONFIG), then env
// overrides for the bits that differ per deployment.
type EngineConfig struct {
	ServerAddr     string         `yaml:"serverAddr"`
	StorageBackend string         `yaml:"storageBackend"` // "s3" or "minio"
	DiffCacheTTL   time.Duration  `yaml:"diffCacheTTL"`
	Worker         WorkerSettings `yaml:"worker"`
}

type WorkerSettings struct {
	Concurrency int            `yaml:"concurrency"`
	Queues      map[string]int `yaml:"queues"`
}

func GetEngineConfig() *EngineConfig {
	engineOnce.Do(func() {
		loadEnv()
		engineConfig = &EngineConfig{
			ServerAddr:     ":8080",
			StorageBackend: "s3",
			DiffCacheTTL:   7 * 24 * time.Hour,
			Worker: WorkerSettings{
				Concurrency: 10,
				Queues: map[string]int{
					"critical": 6,
					"default":  3,
					"low":      1,
				},
			},
		}

		if path := os.Getenv("LINEAGE_CONFIG"); path != "" {
			data, err := os.ReadFile(path)
			if err != nil {
				log.Printf("Warning: can't read config file %s: %v", path, err)
			} else if err := yaml.Unmarshal(data, engineConfig); err != nil {
				log.Printf("Warning: can't parse config file %s: %v", path, err)
			}
		}

		engineConfig.ServerAddr = getenv("SERVER_ADDR", engineConfig.ServerAddr)
		engineConfig.StorageBackend = getenv("STORAGE_BACKEND", engineConfig.StorageBackend)
	})
	return engineConfig
}
