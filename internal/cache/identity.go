package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"CVTailor/internal/domain"
)

// IdentityMode selects how document identities are derived. The two modes must
// not be mixed within one data directory: content identities deduplicate
// identical uploads across users, random identities never do.
type IdentityMode string

const (
	IdentityContent IdentityMode = "content"
	IdentityRandom  IdentityMode = "random"
)

const identityLength = 16

// ParseIdentityMode validates a configured mode string.
func ParseIdentityMode(raw string) (IdentityMode, bool) {
	switch IdentityMode(strings.ToLower(strings.TrimSpace(raw))) {
	case IdentityContent:
		return IdentityContent, true
	case IdentityRandom:
		return IdentityRandom, true
	default:
		return "", false
	}
}

// DocumentIdentity derives the identity of an upload.
func DocumentIdentity(mode IdentityMode, data []byte) domain.DocumentID {
	if mode == IdentityRandom {
		return domain.DocumentID(uuid.NewString())
	}
	return domain.DocumentID(shortDigest(data))
}

// JobIdentity digests the canonical form of job.
func JobIdentity(job domain.JobSpec) (domain.JobID, error) {
	canonical, err := CanonicalJob(job)
	if err != nil {
		return "", err
	}
	return domain.JobID(shortDigest(canonical)), nil
}

// CanonicalJob renders job as key-sorted JSON with normalised text, empty
// fields omitted and keywords de-duplicated and sorted, so semantically equal
// jobs serialise identically regardless of field or keyword order.
func CanonicalJob(job domain.JobSpec) ([]byte, error) {
	fields := map[string]any{}
	put := func(name, value string) {
		if v := normalizeText(value); v != "" {
			fields[name] = v
		}
	}
	put("title", job.Title)
	put("company", job.Company)
	put("location", job.Location)
	put("type", job.Type)
	put("description", job.Description)
	put("url", job.URL)
	if keywords := normalizeKeywords(job.Keywords); len(keywords) > 0 {
		fields["keywords"] = keywords
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(fields); err != nil {
		return nil, fmt.Errorf("encode canonical job: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// SelectionIdentity digests a set of accepted change ids independent of order and duplicates.
func SelectionIdentity(ids []string) string {
	set := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := set[id]; ok {
			continue
		}
		set[id] = struct{}{}
		unique = append(unique, id)
	}
	sort.Strings(unique)
	return shortDigest([]byte(strings.Join(unique, "\n")))
}

// ValidIdentity reports whether s is safe to use as a key component.
func ValidIdentity(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
		default:
			return false
		}
	}
	return true
}

func shortDigest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:identityLength]
}

func normalizeText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

func normalizeKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = normalizeText(kw)
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	sort.Strings(out)
	return out
}
