// Package manifest defines the JSON sidecar written next to each
// uploaded archive. It records what the archive contains and how it
// was produced, so listings and restores do not have to guess from
// file names alone.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Version is bumped whenever the sidecar layout changes shape.
const Version = "1"

type Record struct {
	ID          string     `json:"id"`
	Date        string     `json:"date"`
	Host        string     `json:"host,omitempty"`
	User        string     `json:"user"`
	ArchiveName string     `json:"archive_name"`
	Compression string     `json:"compression"`
	Encrypted   bool       `json:"encrypted"`
	SizeBytes   int64      `json:"size_bytes"`
	Files       int        `json:"files"`
	DumpFiles   []DumpFile `json:"dump_files,omitempty"`
	Warnings    []string   `json:"warnings,omitempty"`
	Version     string     `json:"version,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// DumpFile describes one database dump staged into the archive.
type DumpFile struct {
	Name   string `json:"name"`
	Size   int64  `json:"size,omitempty"`
	SHA256 string `json:"sha256,omitempty"`
}

// FileName is the sidecar name inside the dated remote directory.
func FileName(date, user string) string {
	return fmt.Sprintf("%s-%s-arkhive.json", date, user)
}

func (r *Record) Serialize() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

func Deserialize(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// CalculateChecksum hashes a staged dump file before upload.
func CalculateChecksum(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
