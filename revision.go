package ss

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// parseRevGeneration returns the generation of "<gen>-<hash>" revisions.
func parseRevGeneration(rev string) (uint64, bool) {
	genStr, hash, ok := strings.Cut(rev, "-")
	if !ok || hash == "" {
		return 0, false
	}
	for _, c := range hash {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return 0, false
		}
	}
	gen, err := strconv.ParseUint(genStr, 10, 64)
	if err != nil {
		return 0, false
	}
	return gen, true
}

// contentHash digests the serialized body without _rev.
func contentHash(d Document) uint64 {
	d.Rev = ""
	return xxhash.Sum64(mustAppendMsgpack(nil, d.Body()))
}

// nextRevision allocates the revision following d.Rev for d's content. An
// empty or unparsable d.Rev counts as generation 0.
func nextRevision(d Document) string {
	gen, _ := parseRevGeneration(d.Rev)
	return fmt.Sprintf("%d-%016x", gen+1, contentHash(d))
}
