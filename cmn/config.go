// Package cmn provides common constants, types, and utilities for DFlow
// engines, data servers, and clients.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"os"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
)

type (
	Config struct {
		Cluster   []string      `json:"cluster"` // rank => URL; index is the rank
		Transport TransportConf `json:"transport"`
		Rank      int           `json:"rank"`
		LogLevel  int           `json:"log_level"`
	}

	TransportConf struct {
		// CompressMin is the body size, in bytes, at or above which intra-cluster
		// payloads are LZ4-compressed; zero disables compression.
		CompressMin int `json:"compress_min"`
		TimeoutMs   int `json:"timeout_ms"`
	}

	// Smap is the (static) cluster map: one URL per rank.
	Smap struct {
		Ranks   []string
		Version int64
	}

	configOwner struct {
		c atomic.Pointer[Config]
	}
)

// GCO is the global config owner; Get is lock-free.
var GCO = &configOwner{}

func (gco *configOwner) Get() *Config     { return gco.c.Load() }
func (gco *configOwner) Put(conf *Config) { gco.c.Store(conf) }

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, NewErr(CodeStorage, "failed to read config %q: %v", path, err)
	}
	conf := &Config{}
	if err := jsoniter.Unmarshal(b, conf); err != nil {
		return nil, NewErr(CodeNumberFormat, "failed to parse config %q: %v", path, err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) Validate() error {
	if len(c.Cluster) == 0 {
		return NewErrInvalid("config: empty cluster map")
	}
	if c.Rank < 0 || c.Rank >= len(c.Cluster) {
		return NewErrInvalid("config: rank %d outside cluster of %d", c.Rank, len(c.Cluster))
	}
	if c.Transport.TimeoutMs <= 0 {
		c.Transport.TimeoutMs = int(8 * time.Second / time.Millisecond)
	}
	return nil
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Transport.TimeoutMs) * time.Millisecond
}

func (c *Config) NewSmap() *Smap {
	ranks := make([]string, len(c.Cluster))
	copy(ranks, c.Cluster)
	return &Smap{Ranks: ranks, Version: 1}
}

func (m *Smap) Count() int { return len(m.Ranks) }

func (m *Smap) URL(rank int) string {
	if rank < 0 || rank >= len(m.Ranks) {
		return ""
	}
	return m.Ranks[rank]
}
