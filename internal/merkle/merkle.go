// Package merkle builds and verifies sorted-pair keccak256 Merkle trees over
// guardian address sets.
//
// Pairs are ordered byte-wise before hashing, so proofs carry no left/right
// flags and the same functions serve both policy creation and approval
// verification.
package merkle

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrEmptySet      = errors.New("merkle: address set is empty")
	ErrNotInSet      = errors.New("merkle: address is not in the set")
	ErrInvalidHash   = errors.New("merkle: invalid 32-byte hash")
	ErrInvalidLength = errors.New("merkle: hash must be 32 bytes")
)

// Leaf hashes the lower-cased address string.
func Leaf(address string) common.Hash {
	return crypto.Keccak256Hash([]byte(strings.ToLower(strings.TrimSpace(address))))
}

// HashPair hashes (lesser || greater).
func HashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a[:], b[:])
}

// Verify folds proof into the leaf of address and compares the result with
// root. Malformed proof elements or root fail verification.
func Verify(address, root string, proof []string) bool {
	want, err := ParseHash(root)
	if err != nil {
		return false
	}
	node := Leaf(address)
	for _, p := range proof {
		sibling, err := ParseHash(p)
		if err != nil {
			return false
		}
		node = HashPair(node, sibling)
	}
	return node == want
}

// BuildRoot returns the hex root over addresses.
func BuildRoot(addresses []string) (string, error) {
	levels, err := buildLevels(addresses)
	if err != nil {
		return "", err
	}
	return levels[len(levels)-1][0].Hex(), nil
}

// BuildProof returns the sibling path for address within addresses.
// A single-member set yields an empty, non-nil proof.
func BuildProof(address string, addresses []string) ([]string, error) {
	levels, err := buildLevels(addresses)
	if err != nil {
		return nil, err
	}

	leaf := Leaf(address)
	idx := -1
	for i, h := range levels[0] {
		if h == leaf {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotInSet, address)
	}

	proof := make([]string, 0, len(levels))
	for _, level := range levels[:len(levels)-1] {
		sib := idx ^ 1
		if sib < len(level) {
			proof = append(proof, level[sib].Hex())
		}
		idx /= 2
	}
	return proof, nil
}

// ParseHash decodes a 0x-prefixed (or bare) 32-byte hex hash.
func ParseHash(s string) (common.Hash, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	b, err := hexutil.Decode(strings.ToLower(s))
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	if len(b) != common.HashLength {
		return common.Hash{}, ErrInvalidLength
	}
	return common.BytesToHash(b), nil
}

// buildLevels returns every tree level, leaves first. Leaves are
// deduplicated and sorted; an odd trailing node is promoted unchanged.
func buildLevels(addresses []string) ([][]common.Hash, error) {
	seen := make(map[common.Hash]struct{}, len(addresses))
	leaves := make([]common.Hash, 0, len(addresses))
	for _, a := range addresses {
		if strings.TrimSpace(a) == "" {
			continue
		}
		h := Leaf(a)
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		leaves = append(leaves, h)
	}
	if len(leaves) == 0 {
		return nil, ErrEmptySet
	}
	sort.Slice(leaves, func(i, j int) bool {
		return bytes.Compare(leaves[i][:], leaves[j][:]) < 0
	})

	levels := [][]common.Hash{leaves}
	for level := leaves; len(level) > 1; {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, HashPair(level[i], level[i+1]))
		}
		levels = append(levels, next)
		level = next
	}
	return levels, nil
}
