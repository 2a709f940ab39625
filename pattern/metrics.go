// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package pattern

// Metrics summarizes how evenly a Pattern balances elements across its
// units. It is a derived, external sidecar: nothing in Pattern's core
// query methods depends on it, but tests and distribution tuning do.
type Metrics struct {
	NumBlocks          int
	BlockSize          int64
	MinBlocksPerUnit   int64
	MaxBlocksPerUnit   int64
	NumBalancedUnits   int
	NumImbalancedUnits int
	ImbalanceFactor    float64

	unitBlocks []int64
}

// NewMetrics computes balance metrics for p.
func NewMetrics(p *Pattern) *Metrics {
	m := &Metrics{}
	spec := p.Blockspec()
	numBlocks := int64(1)
	for _, s := range spec {
		numBlocks *= s
	}
	m.NumBlocks = int(numBlocks)

	nunits := p.NUnits()
	m.unitBlocks = make([]int64, nunits)
	for bi := int64(0); bi < numBlocks; bi++ {
		b := p.Block(bi)
		u := p.UnitAt(b.Offsets)
		m.unitBlocks[u]++
	}

	blockSize := int64(1)
	for d := 0; d < p.Rank(); d++ {
		blockSize *= p.Blocksize(d)
	}
	m.BlockSize = blockSize

	if nunits == 0 {
		return m
	}
	m.MinBlocksPerUnit, m.MaxBlocksPerUnit = m.unitBlocks[0], m.unitBlocks[0]
	for _, v := range m.unitBlocks {
		if v < m.MinBlocksPerUnit {
			m.MinBlocksPerUnit = v
		}
		if v > m.MaxBlocksPerUnit {
			m.MaxBlocksPerUnit = v
		}
	}
	for _, v := range m.unitBlocks {
		if v == m.MinBlocksPerUnit {
			m.NumBalancedUnits++
		}
	}
	if m.MinBlocksPerUnit != m.MaxBlocksPerUnit {
		for _, v := range m.unitBlocks {
			if v == m.MaxBlocksPerUnit {
				m.NumImbalancedUnits++
			}
		}
	}
	minElems := m.MinBlocksPerUnit * blockSize
	maxElems := m.MaxBlocksPerUnit * blockSize
	if minElems == 0 {
		if maxElems == 0 {
			m.ImbalanceFactor = 1
		} else {
			m.ImbalanceFactor = float64(maxElems)
		}
	} else {
		m.ImbalanceFactor = float64(maxElems) / float64(minElems)
	}
	return m
}

// UnitBlocks returns the number of blocks mapped to unit u.
func (m *Metrics) UnitBlocks(u Unit) int64 { return m.unitBlocks[u] }
