package attribution

import (
	"context"
	"log"
	"net/url"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// codePattern is the canonical referral code format: 4-20 alphanumeric
// characters, case-insensitive. Codes are stored uppercase.
var codePattern = regexp.MustCompile(`^[A-Za-z0-9]{4,20}$`)

// ValidCode reports whether a candidate matches the referral code format.
func ValidCode(candidate string) bool {
	return codePattern.MatchString(candidate)
}

// Normalize uppercases a referral code for storage and comparison.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

const cacheSize = 4096

// PageContext carries the addressable locations of the page a visitor
// landed on, in the order they are consulted for a referral code.
type PageContext struct {
	QueryRef string // structured ?ref= query parameter, already extracted
	RawQuery string // raw query string, parsed only if QueryRef is empty
	Fragment string // URL fragment (#ref=CODE or #CODE)
}

// Store binds visitors to referral codes across two durable backends.
// Writes go to both; reads prefer the primary and repair it from the
// fallback on a miss. The first captured code for a visitor wins forever.
type Store struct {
	primary  Backend
	fallback Backend
	cache    *lru.Cache[string, string]
}

func NewStore(primary, fallback Backend) (*Store, error) {
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Store{
		primary:  primary,
		fallback: fallback,
		cache:    cache,
	}, nil
}

// Capture validates and persists a candidate code for a visitor. It
// returns false when the code is malformed or when neither backend could
// be written; an already-bound visitor is a successful no-op because the
// backends are first-write-wins. Storage errors are logged, never fatal.
func (s *Store) Capture(ctx context.Context, visitorKey, candidateCode string) bool {
	if visitorKey == "" || !ValidCode(candidateCode) {
		return false
	}
	code := Normalize(candidateCode)

	primaryErr := s.primary.Put(ctx, visitorKey, code)
	if primaryErr != nil {
		log.Printf("[Attribution] primary write failed for visitor %s: %v", visitorKey, primaryErr)
	}
	fallbackErr := s.fallback.Put(ctx, visitorKey, code)
	if fallbackErr != nil {
		log.Printf("[Attribution] fallback write failed for visitor %s: %v", visitorKey, fallbackErr)
	}

	if primaryErr != nil && fallbackErr != nil {
		return false
	}

	// Cache whatever actually won the write, not the candidate.
	if bound, err := s.lookup(ctx, visitorKey); err == nil && bound != "" {
		s.cache.Add(visitorKey, bound)
	}
	return true
}

// Read returns the referral code for a visitor, consulting the page's own
// addressable locations before the persisted binding. A fresh code found
// on the page is captured and returned immediately. Returns "" when no
// source yields a value.
func (s *Store) Read(ctx context.Context, visitorKey string, page PageContext) string {
	if code := codeFromPage(page); code != "" {
		// Capture is first-write-wins, so the code returned below is the
		// binding that actually holds, not necessarily the page's code.
		s.Capture(ctx, visitorKey, code)
	}

	if code, ok := s.cache.Get(visitorKey); ok {
		return code
	}

	code, err := s.lookup(ctx, visitorKey)
	if err != nil {
		log.Printf("[Attribution] read failed for visitor %s: %v", visitorKey, err)
		return ""
	}
	if code != "" {
		s.cache.Add(visitorKey, code)
	}
	return code
}

// lookup reads the binding from the primary backend, falling back to the
// secondary and repairing the primary on a fallback hit.
func (s *Store) lookup(ctx context.Context, visitorKey string) (string, error) {
	code, err := s.primary.Get(ctx, visitorKey)
	if err == nil && code != "" {
		return code, nil
	}
	if err != nil {
		log.Printf("[Attribution] primary read failed for visitor %s: %v", visitorKey, err)
	}

	code, fbErr := s.fallback.Get(ctx, visitorKey)
	if fbErr != nil {
		if err != nil {
			return "", err
		}
		return "", fbErr
	}
	if code == "" {
		return "", nil
	}

	// Write-through repair of the primary.
	if repairErr := s.primary.Put(ctx, visitorKey, code); repairErr != nil {
		log.Printf("[Attribution] primary repair failed for visitor %s: %v", visitorKey, repairErr)
	}
	return code, nil
}

// codeFromPage extracts a candidate code from the page context following
// the source precedence: structured query param, raw query string, then
// URL fragment. The first non-empty source wins; later sources are not
// consulted even if the earlier value turns out to be malformed.
func codeFromPage(page PageContext) string {
	if page.QueryRef != "" {
		return page.QueryRef
	}
	if page.RawQuery != "" {
		if values, err := url.ParseQuery(page.RawQuery); err == nil {
			if ref := values.Get("ref"); ref != "" {
				return ref
			}
		}
	}
	if page.Fragment != "" {
		fragment := strings.TrimPrefix(page.Fragment, "#")
		if values, err := url.ParseQuery(fragment); err == nil {
			if ref := values.Get("ref"); ref != "" {
				return ref
			}
		}
		// A bare fragment like "#CODE1234" is also accepted.
		if !strings.Contains(fragment, "=") {
			return fragment
		}
	}
	return ""
}
