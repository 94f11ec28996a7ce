// Package cos provides low-level utilities shared by all DFlow packages.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import "sync"

// StopCh is a reusable single-close stop channel.
type StopCh struct {
	ch   chan struct{}
	once sync.Once
}

func NewStopCh() *StopCh {
	return &StopCh{ch: make(chan struct{})}
}

func (s *StopCh) Listen() <-chan struct{} { return s.ch }

func (s *StopCh) Close() {
	s.once.Do(func() { close(s.ch) })
}
