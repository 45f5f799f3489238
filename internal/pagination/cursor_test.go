package pagination

import (
	"errors"
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	s := Encode(at, "entry-42")

	c, err := Decode(s)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !c.CreatedAt.Equal(at) {
		t.Errorf("CreatedAt = %v, want %v", c.CreatedAt, at)
	}
	if c.ID != "entry-42" {
		t.Errorf("ID = %q, want entry-42", c.ID)
	}
}

func TestDecodeEmptyIsNil(t *testing.T) {
	c, err := Decode("")
	if err != nil || c != nil {
		t.Errorf("Decode(\"\") = %v, %v, want nil, nil", c, err)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, s := range []string{"not-base64!!", "bm90LWEtY3Vyc29y", "fHw=", "YWJjfA=="} {
		if _, err := Decode(s); !errors.Is(err, ErrInvalidCursor) {
			t.Errorf("Decode(%q) err = %v, want ErrInvalidCursor", s, err)
		}
	}
}

type item struct {
	at time.Time
	id string
}

func TestComputePage(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	key := func(it item) (time.Time, string) { return it.at, it.id }

	// Fewer rows than the limit: no next page.
	items := []item{{base, "a"}, {base.Add(-time.Minute), "b"}}
	page, next, more := ComputePage(items, 5, key)
	if len(page) != 2 || next != "" || more {
		t.Errorf("underfull page = %d items, next %q, more %v", len(page), next, more)
	}

	// limit+1 rows: trimmed page plus a cursor at the last kept item.
	items = append(items, item{base.Add(-2 * time.Minute), "c"})
	page, next, more = ComputePage(items, 2, key)
	if len(page) != 2 || !more {
		t.Fatalf("full page = %d items, more %v", len(page), more)
	}
	c, err := Decode(next)
	if err != nil {
		t.Fatalf("next cursor failed to decode: %v", err)
	}
	if c.ID != "b" {
		t.Errorf("cursor ID = %q, want b (last item kept)", c.ID)
	}
}
