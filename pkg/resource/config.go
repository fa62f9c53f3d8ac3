package resource

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"stratadb/pkg/codec"
	"stratadb/pkg/errs"
	"stratadb/pkg/pagetx"

	"golang.org/x/crypto/chacha20poly1305"
)

// DatabaseType is the document model a database's resources store
// (spec §6.2).
type DatabaseType string

const (
	DatabaseTypeXML  DatabaseType = "XML"
	DatabaseTypeJSON DatabaseType = "JSON"
)

// maxSizeEnvVar is the environment-variable equivalent of the property
// spec §6.2 names `sirix.allocator.maxSize`: a system-wide override for
// MaxSegmentAllocationSize that wins over whatever a database's own
// config file says.
const maxSizeEnvVar = "STRATADB_ALLOCATOR_MAX_SIZE"

// DefaultMaxSegmentAllocationSize is spec §6.2's default, 16G.
const DefaultMaxSegmentAllocationSize = ByteSize(16 << 30)

// ByteSize is a byte count that marshals to/from JSON as a suffixed
// string ("16G", "512MB", "4096"), matching spec §6.2's K/KB/M/MB/G/GB
// suffix grammar (case-insensitive).
type ByteSize int64

// ParseByteSize parses a byte count with an optional K/KB/M/MB/G/GB
// suffix. A bare number is bytes.
func ParseByteSize(s string) (int64, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, errs.Usagef("empty byte size")
	}
	upper := strings.ToUpper(trimmed)
	mult := int64(1)
	numPart := upper
	for _, suffix := range []struct {
		text string
		mult int64
	}{
		{"KB", 1 << 10}, {"MB", 1 << 20}, {"GB", 1 << 30},
		{"K", 1 << 10}, {"M", 1 << 20}, {"G", 1 << 30},
	} {
		if strings.HasSuffix(upper, suffix.text) {
			mult = suffix.mult
			numPart = strings.TrimSpace(upper[:len(upper)-len(suffix.text)])
			break
		}
	}
	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return 0, errs.Usagef("invalid byte size %q: %v", s, err)
	}
	return n * mult, nil
}

// formatByteSize renders n using the largest suffix that divides it
// evenly, falling back to a bare byte count.
func formatByteSize(n int64) string {
	switch {
	case n != 0 && n%(1<<30) == 0:
		return fmt.Sprintf("%dG", n/(1<<30))
	case n != 0 && n%(1<<20) == 0:
		return fmt.Sprintf("%dM", n/(1<<20))
	case n != 0 && n%(1<<10) == 0:
		return fmt.Sprintf("%dK", n/(1<<10))
	default:
		return strconv.FormatInt(n, 10)
	}
}

func (b ByteSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(formatByteSize(int64(b)))
}

func (b *ByteSize) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		n, perr := ParseByteSize(s)
		if perr != nil {
			return perr
		}
		*b = ByteSize(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*b = ByteSize(n)
	return nil
}

// DatabaseConfig is a database's `dbsetting.obj` (spec §6.1/§6.2): the
// handful of fields governing its resources, kept separate from any one
// resource's own page layout. Field order mirrors spec.md's "order
// preserved for backward compatibility" note.
//
// Grounded on teacher dbfile.Header's role as a small validated config
// struct, adapted from its fixed binary Encode/Decode pair to plain JSON
// (spec §2.3): this class of small, fixed-shape settings file has no
// config-framework dependency anywhere in the retrieval pack.
type DatabaseConfig struct {
	File                     string       `json:"file"`
	ID                       int64        `json:"ID"`
	DatabaseID               int64        `json:"databaseId,omitempty"`
	DatabaseType             DatabaseType `json:"databaseType"`
	MaxSegmentAllocationSize ByteSize     `json:"maxSegmentAllocationSize"`
}

// DefaultDatabaseConfig returns a DatabaseConfig with spec §6.2's
// defaults for everything but File, which the caller must set.
func DefaultDatabaseConfig(file string) DatabaseConfig {
	return DatabaseConfig{
		File:                     file,
		DatabaseType:             DatabaseTypeJSON,
		MaxSegmentAllocationSize: DefaultMaxSegmentAllocationSize,
	}
}

// EffectiveMaxSegmentAllocationSize returns MaxSegmentAllocationSize,
// overridden by maxSizeEnvVar when that environment variable is set
// (spec §6.2's system-wide override of `sirix.allocator.maxSize`).
func (c DatabaseConfig) EffectiveMaxSegmentAllocationSize() (int64, error) {
	if v := os.Getenv(maxSizeEnvVar); v != "" {
		return ParseByteSize(v)
	}
	if c.MaxSegmentAllocationSize <= 0 {
		return int64(DefaultMaxSegmentAllocationSize), nil
	}
	return int64(c.MaxSegmentAllocationSize), nil
}

// Revisioning class names accepted in ResourceConfig.Revisioning.RevisioningClass.
const (
	RevisioningFull            = "Full"
	RevisioningIncremental     = "Incremental"
	RevisioningDifferential    = "Differential"
	RevisioningSlidingSnapshot = "SlidingSnapshot"
)

// RevisioningConfig selects one index's leaf-assembly algorithm and
// restore bound (spec §6.3, pkg/pagetx §4.3).
type RevisioningConfig struct {
	RevisioningClass            string `json:"revisioningClass"`
	NumbersOfRevisionsToRestore int    `json:"numbersOfRevisiontoRestore"`
}

// ResourceConfig is a resource's `ressetting.obj` (spec §6.1/§6.3).
//
// Grounded on teacher dbfile.Header/dbfile.metadata.go for the "small
// validated config struct" shape, expressed as JSON per §2.3 rather than
// dbfile's binary Encode/Decode since spec §6.3 calls this file JSON
// explicitly.
type ResourceConfig struct {
	Revisioning        RevisioningConfig `json:"revisioning"`
	ByteHandlerClasses []string          `json:"byteHandlerClasses"`
	StorageKind        string            `json:"storageKind"`
	HashKind           string            `json:"hashKind"`
	Compression        bool              `json:"compression"`
	PathSummary        bool              `json:"pathSummary"`
	ResourceID         int               `json:"resourceID"`
	DeweyIDsStored     bool              `json:"deweyIDsStored"`
	Persistenter       string            `json:"persistenter"`
}

// DefaultResourceConfig returns a ResourceConfig matching pkg/pagetx's
// own default versioning policy (Full, 3 revisions) and a checksummed,
// uncompressed, unencrypted byte-handler pipeline, with the path summary
// enabled.
func DefaultResourceConfig(resourceID int) ResourceConfig {
	return ResourceConfig{
		Revisioning:        RevisioningConfig{RevisioningClass: RevisioningFull, NumbersOfRevisionsToRestore: 3},
		ByteHandlerClasses: []string{"checksum-crc32"},
		StorageKind:        "file",
		HashKind:           "xxhash",
		PathSummary:        true,
		ResourceID:         resourceID,
	}
}

// versioningPolicy translates Revisioning into the pagetx.VersioningPolicy
// DocumentIndex is opened with.
func (c ResourceConfig) versioningPolicy() (pagetx.VersioningPolicy, error) {
	bound := c.Revisioning.NumbersOfRevisionsToRestore
	if bound <= 0 {
		bound = 3
	}
	switch c.Revisioning.RevisioningClass {
	case "", RevisioningFull:
		return pagetx.VersioningPolicy{Algorithm: pagetx.Full, RevisionsToRestore: bound}, nil
	case RevisioningIncremental:
		return pagetx.VersioningPolicy{Algorithm: pagetx.Incremental, RevisionsToRestore: bound}, nil
	case RevisioningDifferential:
		return pagetx.VersioningPolicy{Algorithm: pagetx.Differential, RevisionsToRestore: bound}, nil
	case RevisioningSlidingSnapshot:
		return pagetx.VersioningPolicy{Algorithm: pagetx.SlidingSnapshot, Window: bound, RevisionsToRestore: bound}, nil
	default:
		return pagetx.VersioningPolicy{}, errs.Usagef("unknown revisioningClass %q", c.Revisioning.RevisioningClass)
	}
}

// buildPipeline constructs the byte-handler pipeline named by
// ByteHandlerClasses, in the order given (spec §4.1: resource config
// selects which handlers are active and in what order). Compression
// appends the zstd handler when true and it isn't already named.
// encryptionKey is required only when "encrypt-chacha20poly1305" appears.
func buildPipeline(c ResourceConfig, encryptionKey *[chacha20poly1305.KeySize]byte) (*codec.Pipeline, error) {
	classes := c.ByteHandlerClasses
	if c.Compression && !containsString(classes, "deflate-zstd") {
		classes = append(append([]string(nil), classes...), "deflate-zstd")
	}

	handlers := make([]codec.Handler, 0, len(classes))
	for _, name := range classes {
		switch name {
		case "checksum-crc32":
			handlers = append(handlers, codec.NewChecksumHandler())
		case "deflate-zstd":
			h, err := codec.NewZstdHandler()
			if err != nil {
				return nil, err
			}
			handlers = append(handlers, h)
		case "encrypt-chacha20poly1305":
			if encryptionKey == nil {
				return nil, errs.Usagef("resource config names encrypt-chacha20poly1305 but no key material was supplied")
			}
			h, err := codec.NewEncryptHandler(*encryptionKey)
			if err != nil {
				return nil, err
			}
			handlers = append(handlers, h)
		default:
			return nil, errs.Usagef("unknown byte handler class %q", name)
		}
	}
	return codec.NewPipeline(handlers...), nil
}

func containsString(items []string, target string) bool {
	for _, s := range items {
		if s == target {
			return true
		}
	}
	return false
}
