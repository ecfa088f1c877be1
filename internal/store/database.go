package store

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// StringData is the payload held for one key: the raw bytes and an
// optional absolute expiration instant. A zero ExpireAt means the key
// never expires.
type StringData struct {
	Value    string
	ExpireAt time.Time
}

func (d StringData) hasExpiry() bool { return !d.ExpireAt.IsZero() }

func (d StringData) isExpired(now time.Time) bool {
	return d.hasExpiry() && !now.Before(d.ExpireAt)
}

// Database is one mutex-guarded key/value map. Expiration is purely
// passive: nothing sweeps the map on a timer, so an expired key keeps
// occupying space until something reads it (Get) or KEYS happens to
// be asked about it — and KEYS deliberately does not filter expired
// keys out, matching the source behavior spec.md calls out to
// preserve (§4.3, §9).
type Database struct {
	mu   sync.Mutex
	data map[string]StringData
}

func newDatabase() *Database {
	return &Database{data: make(map[string]StringData)}
}

// Set upserts key with value and an optional absolute expiry. A zero
// Time means no expiry.
func (db *Database) Set(key, value string, expireAt time.Time) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[key] = StringData{Value: value, ExpireAt: expireAt}
}

// Get returns the value for key. An expired key is removed on this
// observation and reported as absent.
func (db *Database) Get(key string) (string, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	d, ok := db.data[key]
	if !ok {
		return "", false
	}
	if d.isExpired(time.Now()) {
		delete(db.data, key)
		return "", false
	}
	return d.Value, true
}

// Keys returns every key (expired or not — see the Database doc
// comment) whose name matches pattern, translated to a regex per the
// single rule spec.md §4.3 gives: '*' becomes '.*', every other byte
// is copied into the regex source unescaped (see compileGlob).
func (db *Database) Keys(pattern string) ([]string, error) {
	re, err := compileGlob(pattern)
	if err != nil {
		return nil, err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]string, 0, len(db.data))
	for k := range db.data {
		if re.MatchString(k) {
			out = append(out, k)
		}
	}
	return out, nil
}

// compileGlob implements the literal-except-'*' translation: only '*'
// is special (→ ".*"); every other byte is pushed into the regex
// source as-is, matching spec.md §4.3 and the original parser's
// byte-by-byte construction verbatim — a pattern byte that happens to
// be a regex metacharacter is interpreted as regex syntax, not
// escaped, which is also what makes "-ERR Invalid Regex Format"
// reachable for a malformed pattern.
func compileGlob(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteByte('^')
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c == '*' {
			b.WriteString(".*")
			continue
		}
		b.WriteByte(c)
	}
	b.WriteByte('$')
	return regexp.Compile(b.String())
}

// Incr parses the key's current payload as a signed 64-bit integer
// (treating an absent key as "0"), adds one, saturates at
// math.MaxInt64 instead of erroring on overflow (an explicit,
// deliberate deviation from a strict overflow error — see
// DESIGN.md Open Question I), and stores the result back as its
// decimal string.
func (db *Database) Incr(key string) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	cur := int64(0)
	var expireAt time.Time
	if d, ok := db.data[key]; ok && !d.isExpired(time.Now()) {
		n, err := strconv.ParseInt(d.Value, 10, 64)
		if err != nil {
			return 0, errNotAnInteger
		}
		cur = n
		expireAt = d.ExpireAt
	}

	var next int64
	if cur == math.MaxInt64 {
		next = math.MaxInt64
	} else {
		next = cur + 1
	}

	db.data[key] = StringData{Value: strconv.FormatInt(next, 10), ExpireAt: expireAt}
	return next, nil
}
