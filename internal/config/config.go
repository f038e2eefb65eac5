// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/BitManipulators/wildlife-chat/internal/logger"
)

// Config holds every environment-derived setting the server needs, per
// spec.md §6's enumerated environment configuration plus the ambient
// additions documented in SPEC_FULL.md §6.
type Config struct {
	EmbeddingAPIKey string `mapstructure:"EMBEDDING_API_KEY"`
	EmbeddingRegion string `mapstructure:"EMBEDDING_REGION"`
	EmbeddingModel  string `mapstructure:"EMBEDDING_MODEL"`

	VectorIndexAPIKey    string `mapstructure:"VECTOR_INDEX_API_KEY"`
	VectorIndexPlantName string `mapstructure:"VECTOR_INDEX_PLANT_NAME"`
	VectorIndexAnimalName string `mapstructure:"VECTOR_INDEX_ANIMAL_NAME"`
	VectorIndexAddress   string `mapstructure:"VECTOR_INDEX_ADDRESS"`

	LLMAPIKey    string `mapstructure:"LLM_API_KEY"`
	LLMModelName string `mapstructure:"LLM_MODEL_NAME"`

	StoreBackend string `mapstructure:"STORE_BACKEND"`
	SQLitePath   string `mapstructure:"SQLITE_PATH"`

	PingIntervalSeconds int `mapstructure:"PING_INTERVAL_SECONDS"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	LogFile  string `mapstructure:"LOG_FILE"`
}

// Load reads .env (if present, logging-and-continuing otherwise), binds
// every key above to its environment variable via viper, and returns the
// populated Config. Defaults match SPEC_FULL.md §6.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Printf("config: no .env file loaded: %v", err)
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("EMBEDDING_REGION", "us-west-2")
	v.SetDefault("EMBEDDING_MODEL", "cohere.embed-english-v3")
	v.SetDefault("VECTOR_INDEX_PLANT_NAME", "plant-knowledge-base")
	v.SetDefault("VECTOR_INDEX_ANIMAL_NAME", "animal-knowledge-base")
	v.SetDefault("VECTOR_INDEX_ADDRESS", "localhost:6334")
	v.SetDefault("LLM_MODEL_NAME", "gemini-2.5-flash")
	v.SetDefault("STORE_BACKEND", "memory")
	v.SetDefault("SQLITE_PATH", "wildlife-chat.db")
	v.SetDefault("PING_INTERVAL_SECONDS", 30)
	v.SetDefault("REDIS_ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("LOG_FILE", "wildlife-chat.log")

	keys := []string{
		"EMBEDDING_API_KEY", "EMBEDDING_REGION", "EMBEDDING_MODEL",
		"VECTOR_INDEX_API_KEY", "VECTOR_INDEX_PLANT_NAME", "VECTOR_INDEX_ANIMAL_NAME", "VECTOR_INDEX_ADDRESS",
		"LLM_API_KEY", "LLM_MODEL_NAME",
		"STORE_BACKEND", "SQLITE_PATH",
		"PING_INTERVAL_SECONDS",
		"REDIS_ADDR", "REDIS_DB", "REDIS_PASSWORD",
		"HTTP_ADDR", "LOG_FILE",
	}
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", k, err)
		}
	}

	cfg := &Config{
		EmbeddingAPIKey:       v.GetString("EMBEDDING_API_KEY"),
		EmbeddingRegion:       v.GetString("EMBEDDING_REGION"),
		EmbeddingModel:        v.GetString("EMBEDDING_MODEL"),
		VectorIndexAPIKey:     v.GetString("VECTOR_INDEX_API_KEY"),
		VectorIndexPlantName:  v.GetString("VECTOR_INDEX_PLANT_NAME"),
		VectorIndexAnimalName: v.GetString("VECTOR_INDEX_ANIMAL_NAME"),
		VectorIndexAddress:    v.GetString("VECTOR_INDEX_ADDRESS"),
		LLMAPIKey:             v.GetString("LLM_API_KEY"),
		LLMModelName:          v.GetString("LLM_MODEL_NAME"),
		StoreBackend:          v.GetString("STORE_BACKEND"),
		SQLitePath:            v.GetString("SQLITE_PATH"),
		PingIntervalSeconds:   v.GetInt("PING_INTERVAL_SECONDS"),
		RedisAddr:             v.GetString("REDIS_ADDR"),
		RedisDB:               v.GetInt("REDIS_DB"),
		RedisPassword:         v.GetString("REDIS_PASSWORD"),
		HTTPAddr:              v.GetString("HTTP_ADDR"),
		LogFile:               v.GetString("LOG_FILE"),
	}

	logger.Printf("config: loaded embeddingKeyLen=%d llmKeyLen=%d storeBackend=%s vectorIndexAddr=%s",
		len(cfg.EmbeddingAPIKey), len(cfg.LLMAPIKey), cfg.StoreBackend, cfg.VectorIndexAddress)

	return cfg, nil
}
