package cache

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/blake2b"
)

// keyVersion changes whenever the stored entry layout changes
const keyVersion = "eyeparse-cache/v1"

// Key derives the cache key for a parse of files under the given processor
// and pipeline configuration. Files are hashed in the order given.
func Key(processor, options string, files []string) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	writeField(h, keyVersion)
	writeField(h, processor)
	writeField(h, options)

	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("hashing %s: %w", path, err)
		}
		content, _ := blake2b.New256(nil)
		size, err := io.Copy(content, f)
		f.Close()
		if err != nil {
			return "", fmt.Errorf("hashing %s: %w", path, err)
		}

		writeField(h, filepath.Base(path))
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(size))
		h.Write(n[:])
		h.Write(content.Sum(nil))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// writeField writes a length-prefixed string so adjacent fields cannot run
// together
func writeField(w io.Writer, s string) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(s)))
	w.Write(n[:])
	io.WriteString(w, s)
}

// ValidKey reports whether s looks like a key produced by Key
func ValidKey(s string) bool {
	if len(s) != 2*blake2b.Size256 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
