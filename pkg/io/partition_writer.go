package io

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// PartitionFileName derives the conventional output name
// <input>.part<k>.epsilon<eps>.
func PartitionFileName(inputPath string, k int, epsilon float64) string {
	eps := strconv.FormatFloat(epsilon, 'g', -1, 64)
	return fmt.Sprintf("%s.part%d.epsilon%s", inputPath, k, eps)
}

// WritePartition stores one block id per line in vertex-id order.
func WritePartition(path string, partition []int) error {
	var sb strings.Builder
	sb.Grow(len(partition) * 2)
	for _, p := range partition {
		sb.WriteString(strconv.Itoa(p))
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("writing partition file %s: %w", path, err)
	}
	return nil
}
