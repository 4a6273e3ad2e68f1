// Package shard derives partition keys for the relationship and uniqueness
// tables.
package shard

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
)

// Partition returns the relationship partition holding the edge
// parentRef -> childRef. With numShards <= 1 every child of a parent lands in
// shard "00"; otherwise children spread by an FNV-1a hash of childRef.
func Partition(parentRef, childRef string, numShards int) string {
	if numShards <= 1 {
		return Of(parentRef, 0)
	}
	h := fnv.New32a()
	h.Write([]byte(childRef))
	return Of(parentRef, int(h.Sum32()%uint32(numShards)))
}

// Of returns the partition key of shard n of parentRef.
func Of(parentRef string, n int) string {
	return fmt.Sprintf("%s#%02x", parentRef, n)
}

// UniqueKey hashes a sibling uniqueness constraint into its own partition so
// constraints never concentrate on one hot key.
func UniqueKey(parentRef, kind, field, value string) string {
	sum := sha256.Sum256([]byte(parentRef + "#" + kind + "#" + field + "#" + value))
	return hex.EncodeToString(sum[:16])
}
