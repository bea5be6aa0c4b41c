package io_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/datastructure"
	hgio "github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/io"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadHMetisUnweighted(t *testing.T) {
	// the seven-vertex fixture, 1-indexed pins
	content := "% fixture\n4 7\n1 3\n1 2 4 5\n4 5 7\n3 6 7\n"
	path := writeTemp(t, "fixture.hgr", content)

	file, err := hgio.ReadHypergraphFromFile(path)
	require.NoError(t, err)
	require.Equal(t, 7, file.NumNodes)
	require.Equal(t, 4, file.NumEdges)
	require.Equal(t, []int{0, 2, 6, 9, 12}, file.EdgeOffsets)
	require.Equal(t, []datastructure.Index{0, 2, 0, 1, 3, 4, 3, 4, 6, 2, 5, 6}, file.EdgePins)
	for _, w := range file.EdgeWeights {
		require.Equal(t, int32(1), w)
	}

	hg, err := file.Build()
	require.NoError(t, err)
	require.Equal(t, int64(7), hg.TotalWeight())
}

func TestReadHMetisWithWeights(t *testing.T) {
	content := "3 4 11\n5 1 2\n2 3 4\n7 1 4\n1\n2\n3\n4\n"
	path := writeTemp(t, "weighted.hgr", content)

	file, err := hgio.ReadHypergraphFromFile(path)
	require.NoError(t, err)
	require.Equal(t, 4, file.NumNodes)
	require.Equal(t, 3, file.NumEdges)
	require.Equal(t, []int32{5, 2, 7}, file.EdgeWeights)
	require.Equal(t, []int32{1, 2, 3, 4}, file.VertexWeights)
}

func TestReadMetisGraph(t *testing.T) {
	// a triangle: 3 vertices, 3 undirected edges
	content := "3 3\n2 3\n1 3\n1 2\n"
	path := writeTemp(t, "triangle.graph", content)

	file, err := hgio.ReadHypergraphFromFile(path)
	require.NoError(t, err)
	require.Equal(t, 3, file.NumNodes)
	require.Equal(t, 3, file.NumEdges)
	for e := 0; e < 3; e++ {
		require.Equal(t, 2, file.EdgeOffsets[e+1]-file.EdgeOffsets[e],
			"metis conversion must yield 2-pin hyperedges")
	}
}

func TestReadMalformedFiles(t *testing.T) {
	tests := []struct {
		name, file, content string
	}{
		{"empty", "e.hgr", ""},
		{"bad header", "h.hgr", "x y\n1 2\n"},
		{"missing edge lines", "m.hgr", "3 4\n1 2\n"},
		{"pin out of range", "p.hgr", "1 2\n1 5\n"},
		{"nonpositive edge weight", "w.hgr", "1 2 1\n0 1 2\n"},
		{"metis count mismatch", "c.graph", "3 5\n2\n1\n\n"},
		{"metis neighbor out of range", "n.graph", "2 1\n7\n1\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTemp(t, tc.file, tc.content)
			_, err := hgio.ReadHypergraphFromFile(path)
			require.Error(t, err)
		})
	}
}

func TestReadMissingFile(t *testing.T) {
	_, err := hgio.ReadHypergraphFromFile("/does/not/exist.hgr")
	require.Error(t, err)
}

func TestWritePartitionRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.part")
	require.NoError(t, hgio.WritePartition(path, []int{0, 2, 1, 0}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "0\n2\n1\n0\n", string(data))
}

func TestPartitionFileName(t *testing.T) {
	require.Equal(t, "ibm01.hgr.part4.epsilon0.03",
		hgio.PartitionFileName("ibm01.hgr", 4, 0.03))
}
