package rules

import (
	"regexp"
	"sync"

	"github.com/Ramsey-B/laurel/pkg/models"
)

var (
	patternMu    sync.RWMutex
	patternCache = make(map[string]*regexp.Regexp)
)

// FormatCheck reports whether a normalized identifier satisfies the rule
// set's format spec: the pattern when one is set, then the checksum scheme
// when one is named. An empty identifier never passes. A pattern that does
// not compile fails closed; Validate rejects those before they get here.
func FormatCheck(spec models.IdentifierSpec, normalizedID string) bool {
	if normalizedID == "" {
		return false
	}

	if spec.Pattern != "" {
		re, err := compiledPattern(spec.Pattern)
		if err != nil {
			return false
		}
		if !re.MatchString(normalizedID) {
			return false
		}
	}

	switch spec.Checksum {
	case models.ChecksumLuhn:
		return luhnValid(normalizedID)
	case models.ChecksumVerhoeff:
		return verhoeffValid(normalizedID)
	}

	return true
}

func compiledPattern(pattern string) (*regexp.Regexp, error) {
	patternMu.RLock()
	re, ok := patternCache[pattern]
	patternMu.RUnlock()
	if ok {
		return re, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	patternMu.Lock()
	patternCache[pattern] = re
	patternMu.Unlock()
	return re, nil
}
