package danmaku

import (
	"regexp"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

// DefaultBlockedWords is the built-in blocklist. The length rule must stay
// first so over-long spam is dropped before any other rule runs.
const DefaultBlockedWords = `/^.{25,}$/`

// Blocklist holds the compiled BLOCKED_WORDS rules. Compilation results are
// cached by the xxhash of the raw config string, so hot config reloads only
// recompile when the value actually changed.
type Blocklist struct {
	rules []*regexp.Regexp
}

var blocklistCache = struct {
	sync.Mutex
	hash  uint64
	value *Blocklist
}{}

// CompileBlocklist parses a comma-separated list of slash-delimited regexes,
// e.g. "/^.{25,}$/,/spam/". Invalid entries are logged once and dropped; the
// remaining entries are kept.
func CompileBlocklist(raw string, logger *zap.Logger) *Blocklist {
	sum := xxhash.Sum64String(raw)
	blocklistCache.Lock()
	defer blocklistCache.Unlock()
	if blocklistCache.value != nil && blocklistCache.hash == sum {
		return blocklistCache.value
	}

	bl := &Blocklist{}
	for _, entry := range splitRules(raw) {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		pattern := strings.TrimSuffix(strings.TrimPrefix(entry, "/"), "/")
		re, err := regexp.Compile(pattern)
		if err != nil {
			logger.Warn("Couldn't compile blocked-words rule, dropping it", zap.String("rule", entry), zap.Error(err))
			continue
		}
		bl.rules = append(bl.rules, re)
	}

	blocklistCache.hash = sum
	blocklistCache.value = bl
	return bl
}

// splitRules splits on commas that sit between a closing and an opening slash,
// so commas inside a regex (e.g. "{25,}") survive.
func splitRules(raw string) []string {
	var rules []string
	depth := 0 // inside a /.../ rule when odd
	start := 0
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '/':
			if i == 0 || raw[i-1] != '\\' {
				depth ^= 1
			}
		case ',':
			if depth == 0 {
				rules = append(rules, raw[start:i])
				start = i + 1
			}
		}
	}
	rules = append(rules, raw[start:])
	return rules
}

// Filter drops every comment whose text matches any compiled rule.
func (b *Blocklist) Filter(comments []Comment) []Comment {
	if len(b.rules) == 0 {
		return comments
	}
	kept := comments[:0]
	for _, c := range comments {
		blocked := false
		for _, re := range b.rules {
			if re.MatchString(c.Text) {
				blocked = true
				break
			}
		}
		if !blocked {
			kept = append(kept, c)
		}
	}
	return kept
}

// Len returns the number of active rules.
func (b *Blocklist) Len() int {
	return len(b.rules)
}
