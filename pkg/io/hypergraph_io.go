package io

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/datastructure"
)

var ErrMalformedFile = errors.New("malformed hypergraph file")

// HypergraphFile is the CSR payload read from disk, matching the array form
// consumed by the partitioning API.
type HypergraphFile struct {
	NumNodes      int
	NumEdges      int
	EdgeOffsets   []int
	EdgePins      []datastructure.Index
	EdgeWeights   []int32
	VertexWeights []int32
}

// Build materializes the static hypergraph.
func (f *HypergraphFile) Build() (*datastructure.Hypergraph, error) {
	return datastructure.NewHypergraph(f.NumNodes, f.NumEdges, f.EdgeOffsets, f.EdgePins, f.EdgeWeights, f.VertexWeights)
}

// ReadHypergraphFromFile reads an hMetis hypergraph or a Metis graph
// (converted to 2-pin hyperedges). Files ending in .bz2 are decompressed
// transparently; .graph/.metis selects the Metis format.
func ReadHypergraphFromFile(path string) (*HypergraphFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	name := path
	var scanner *bufio.Scanner
	if strings.HasSuffix(path, ".bz2") {
		decompressed, err := bzip2.NewReader(file, nil)
		if err != nil {
			return nil, fmt.Errorf("opening bzip2 stream %s: %w", path, err)
		}
		defer decompressed.Close()
		scanner = bufio.NewScanner(decompressed)
		name = strings.TrimSuffix(path, ".bz2")
	} else {
		scanner = bufio.NewScanner(file)
	}
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024*64)

	switch filepath.Ext(name) {
	case ".graph", ".metis":
		return readMetis(scanner)
	default:
		return readHMetis(scanner)
	}
}

// nextContentLine skips comments (%) and blank lines.
func nextContentLine(scanner *bufio.Scanner) (string, bool) {
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "%") {
			continue
		}
		return line, true
	}
	return "", false
}

// readHMetis parses the hMetis format: header "m n [fmt]", one line per
// hyperedge (optionally weight-prefixed), then one vertex weight per line
// when fmt requests it. Pins are 1-indexed on disk.
func readHMetis(scanner *bufio.Scanner) (*HypergraphFile, error) {
	header, ok := nextContentLine(scanner)
	if !ok {
		return nil, fmt.Errorf("%w: missing header", ErrMalformedFile)
	}
	fields := strings.Fields(header)
	if len(fields) < 2 {
		return nil, fmt.Errorf("%w: header needs at least edge and vertex counts", ErrMalformedFile)
	}
	numEdges, err1 := strconv.Atoi(fields[0])
	numNodes, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil || numEdges < 0 || numNodes <= 0 {
		return nil, fmt.Errorf("%w: invalid header %q", ErrMalformedFile, header)
	}
	hasEdgeWeights, hasNodeWeights := false, false
	if len(fields) >= 3 {
		switch fields[2] {
		case "1":
			hasEdgeWeights = true
		case "10":
			hasNodeWeights = true
		case "11":
			hasEdgeWeights = true
			hasNodeWeights = true
		case "0":
		default:
			return nil, fmt.Errorf("%w: unknown fmt field %q", ErrMalformedFile, fields[2])
		}
	}

	out := &HypergraphFile{
		NumNodes:    numNodes,
		NumEdges:    numEdges,
		EdgeOffsets: make([]int, 1, numEdges+1),
		EdgeWeights: make([]int32, 0, numEdges),
	}
	for e := 0; e < numEdges; e++ {
		line, ok := nextContentLine(scanner)
		if !ok {
			return nil, fmt.Errorf("%w: expected %d hyperedge lines, got %d", ErrMalformedFile, numEdges, e)
		}
		tokens := strings.Fields(line)
		weight := int32(1)
		if hasEdgeWeights {
			w, err := strconv.Atoi(tokens[0])
			if err != nil || w <= 0 {
				return nil, fmt.Errorf("%w: bad weight of hyperedge %d", ErrMalformedFile, e)
			}
			weight = int32(w)
			tokens = tokens[1:]
		}
		if len(tokens) == 0 {
			return nil, fmt.Errorf("%w: hyperedge %d has no pins", ErrMalformedFile, e)
		}
		for _, tok := range tokens {
			pin, err := strconv.Atoi(tok)
			if err != nil || pin < 1 || pin > numNodes {
				return nil, fmt.Errorf("%w: pin %q of hyperedge %d out of range", ErrMalformedFile, tok, e)
			}
			out.EdgePins = append(out.EdgePins, datastructure.Index(pin-1))
		}
		out.EdgeOffsets = append(out.EdgeOffsets, len(out.EdgePins))
		out.EdgeWeights = append(out.EdgeWeights, weight)
	}

	out.VertexWeights = make([]int32, numNodes)
	for v := range out.VertexWeights {
		out.VertexWeights[v] = 1
	}
	if hasNodeWeights {
		for v := 0; v < numNodes; v++ {
			line, ok := nextContentLine(scanner)
			if !ok {
				return nil, fmt.Errorf("%w: expected %d vertex weights, got %d", ErrMalformedFile, numNodes, v)
			}
			w, err := strconv.Atoi(strings.Fields(line)[0])
			if err != nil || w <= 0 {
				return nil, fmt.Errorf("%w: bad weight of vertex %d", ErrMalformedFile, v)
			}
			out.VertexWeights[v] = int32(w)
		}
	}
	return out, nil
}

// readMetis parses the Metis graph format and converts every undirected
// edge into a 2-pin hyperedge.
func readMetis(scanner *bufio.Scanner) (*HypergraphFile, error) {
	header, ok := nextContentLine(scanner)
	if !ok {
		return nil, fmt.Errorf("%w: missing header", ErrMalformedFile)
	}
	fields := strings.Fields(header)
	if len(fields) < 2 {
		return nil, fmt.Errorf("%w: header needs vertex and edge counts", ErrMalformedFile)
	}
	numNodes, err1 := strconv.Atoi(fields[0])
	declaredEdges, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil || numNodes <= 0 || declaredEdges < 0 {
		return nil, fmt.Errorf("%w: invalid header %q", ErrMalformedFile, header)
	}
	hasEdgeWeights, hasNodeWeights := false, false
	if len(fields) >= 3 {
		fmtField := fields[2]
		if len(fmtField) > 3 {
			return nil, fmt.Errorf("%w: unknown fmt field %q", ErrMalformedFile, fmtField)
		}
		hasEdgeWeights = strings.HasSuffix(fmtField, "1")
		hasNodeWeights = len(fmtField) >= 2 && fmtField[len(fmtField)-2] == '1'
	}

	out := &HypergraphFile{
		NumNodes:      numNodes,
		EdgeOffsets:   []int{0},
		VertexWeights: make([]int32, numNodes),
	}
	for v := range out.VertexWeights {
		out.VertexWeights[v] = 1
	}

	for v := 0; v < numNodes; v++ {
		// an empty adjacency line is an isolated vertex; only comments are skipped
		line, ok := "", false
		for scanner.Scan() {
			line = scanner.Text()
			if !strings.HasPrefix(strings.TrimSpace(line), "%") {
				ok = true
				break
			}
		}
		if !ok {
			return nil, fmt.Errorf("%w: expected %d adjacency lines, got %d", ErrMalformedFile, numNodes, v)
		}
		tokens := strings.Fields(line)
		idx := 0
		if hasNodeWeights {
			if len(tokens) == 0 {
				return nil, fmt.Errorf("%w: missing weight of vertex %d", ErrMalformedFile, v)
			}
			w, err := strconv.Atoi(tokens[0])
			if err != nil || w <= 0 {
				return nil, fmt.Errorf("%w: bad weight of vertex %d", ErrMalformedFile, v)
			}
			out.VertexWeights[v] = int32(w)
			idx = 1
		}
		for idx < len(tokens) {
			neighbor, err := strconv.Atoi(tokens[idx])
			if err != nil || neighbor < 1 || neighbor > numNodes {
				return nil, fmt.Errorf("%w: neighbor %q of vertex %d out of range", ErrMalformedFile, tokens[idx], v)
			}
			idx++
			weight := int32(1)
			if hasEdgeWeights {
				if idx >= len(tokens) {
					return nil, fmt.Errorf("%w: missing edge weight on vertex %d", ErrMalformedFile, v)
				}
				w, err := strconv.Atoi(tokens[idx])
				if err != nil || w <= 0 {
					return nil, fmt.Errorf("%w: bad edge weight on vertex %d", ErrMalformedFile, v)
				}
				weight = int32(w)
				idx++
			}
			// each undirected edge appears twice; keep the u < v copy
			u := neighbor - 1
			if v < u {
				out.EdgePins = append(out.EdgePins, datastructure.Index(v), datastructure.Index(u))
				out.EdgeOffsets = append(out.EdgeOffsets, len(out.EdgePins))
				out.EdgeWeights = append(out.EdgeWeights, weight)
			}
		}
	}
	out.NumEdges = len(out.EdgeWeights)
	if declaredEdges != out.NumEdges {
		return nil, fmt.Errorf("%w: header declares %d edges, adjacency lists contain %d", ErrMalformedFile, declaredEdges, out.NumEdges)
	}
	return out, nil
}
