package recall

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/codeready-toolchain/cake/pkg/event"
)

// Signature is a stable 256-bit digest identifying an error event's category
// for repeat-detection purposes. Two events that differ only in line number
// or in the specific identifier named within the same category token collapse
// to the same Signature.
type Signature [32]byte

// String renders the signature as a lowercase hex string, the form used as
// the primary key in the backing store.
func (s Signature) String() string {
	return hex.EncodeToString(s[:])
}

// ParseSignature parses the hex form produced by String.
func ParseSignature(s string) (Signature, error) {
	var sig Signature
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(sig) {
		return sig, errInvalidSignature
	}
	copy(sig[:], b)
	return sig, nil
}

var errInvalidSignature = &signatureError{"invalid signature encoding"}

type signatureError struct{ msg string }

func (e *signatureError) Error() string { return e.msg }

// placeholder markers substituted for variable content before hashing.
const (
	numberPlaceholder = "#"
	quotePlaceholder  = "~"
)

var (
	numberRe = regexp.MustCompile(`\b\d+\b`)
	quoteRe  = regexp.MustCompile(`'[^']*'|"[^"]*"`)
)

// Sign computes the stable Signature for e. Normalization lowercases the
// kind tag, reduces the path to its basename, and replaces numeric line
// numbers and quoted literals in the raw message with fixed placeholders so
// that "No module named 'requests'" and "No module named 'flask'" collapse
// to the same signature while the ImportMissing kind tag keeps them distinct
// from, say, AttributeError events with similar wording.
func Sign(e event.Event) Signature {
	normalized := NormalizeRemainder(e.Raw)
	base := filepath.Base(e.Path)
	material := strings.ToLower(string(e.Kind)) + "\x00" + base + "\x00" + normalized
	return sha256.Sum256([]byte(material))
}

// NormalizeRemainder strips numeric line numbers and quoted literals from a
// raw message, replacing them with fixed placeholders so messages that
// differ only in those tokens produce identical remainders. The result is
// persisted on Record.Remainder and is what Store.Similar compares against.
func NormalizeRemainder(raw string) string {
	s := quoteRe.ReplaceAllString(raw, quotePlaceholder)
	s = numberRe.ReplaceAllString(s, numberPlaceholder)
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizedTokens returns the whitespace-delimited tokens of the normalized
// remainder, used as the query side of Store.Similar's token-set overlap
// comparison.
func NormalizedTokens(raw string) []string {
	return strings.Fields(NormalizeRemainder(raw))
}

// SiblingMatchThreshold is the minimum Jaccard overlap between a query's
// normalized remainder and a stored record's remainder for the record to be
// considered a sibling match in Store.Similar.
const SiblingMatchThreshold = 0.6
