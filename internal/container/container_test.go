package container

import (
	"bytes"
	"reflect"
	"testing"
)

func sample() *Container {
	c := New("gateway", "1", "main_server", "", "upload_files")
	c.Add(NewString("indication_id", "abc-123"))
	c.Add(NewU32("percentage", 50))
	c.Add(NewBool("completed", false))
	c.Add(NewBytes("chunk", []byte{1, 2, 3, 4}))
	nested := New("", "", "", "", "entry")
	nested.Add(NewString("path", "/a/b"))
	c.Add(NewContainer("file", nested))
	return c
}

func TestSerializeParseRoundTrip(t *testing.T) {
	c := sample()
	data := c.Serialize()
	parsed, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Header != c.Header {
		t.Fatalf("header mismatch: got %+v want %+v", parsed.Header, c.Header)
	}
	if len(parsed.Values) != len(c.Values) {
		t.Fatalf("value count mismatch: got %d want %d", len(parsed.Values), len(c.Values))
	}
	for i, v := range c.Values {
		pv := parsed.Values[i]
		if pv.Name != v.Name || pv.Kind != v.Kind {
			t.Fatalf("value %d mismatch: got %+v want %+v", i, pv, v)
		}
	}
	gotBytes, _ := parsed.Values[3].Bytes()
	wantBytes, _ := c.Values[3].Bytes()
	if !bytes.Equal(gotBytes, wantBytes) {
		t.Fatalf("bytes value mismatch: got %v want %v", gotBytes, wantBytes)
	}
	gotNested, ok := parsed.Values[4].Container()
	if !ok {
		t.Fatalf("expected nested container value")
	}
	path, _ := gotNested.Lookup("path")
	pathStr, _ := path.String()
	if pathStr != "/a/b" {
		t.Fatalf("nested path = %q, want /a/b", pathStr)
	}
}

func TestParseEmptyMessageTypeRejected(t *testing.T) {
	c := New("a", "", "b", "", "")
	data := c.Serialize()
	if _, err := Parse(data); err != ErrEmptyMessageType {
		t.Fatalf("Parse with empty message_type = %v, want ErrEmptyMessageType", err)
	}
}

func TestLookupReturnsFirstMatch(t *testing.T) {
	c := New("a", "", "b", "", "t")
	c.Add(NewI32("x", 1))
	c.Add(NewI32("x", 2))
	v, ok := c.Lookup("x")
	if !ok {
		t.Fatalf("Lookup(x) not found")
	}
	n, _ := v.Int64()
	if n != 1 {
		t.Fatalf("Lookup(x) = %d, want first match 1", n)
	}
}

func TestLookupArrayInsertionOrder(t *testing.T) {
	c := New("a", "", "b", "", "t")
	c.Add(NewString("f", "one"))
	c.Add(NewString("g", "skip"))
	c.Add(NewString("f", "two"))
	arr := c.LookupArray("f")
	if len(arr) != 2 {
		t.Fatalf("LookupArray(f) len = %d, want 2", len(arr))
	}
	first, _ := arr[0].String()
	second, _ := arr[1].String()
	if first != "one" || second != "two" {
		t.Fatalf("LookupArray(f) = [%q %q], want [one two]", first, second)
	}
}

func TestSwapHeaderIsInvolution(t *testing.T) {
	c := New("src", "1", "tgt", "2", "t")
	orig := c.Header
	c.SwapHeader()
	c.SwapHeader()
	if c.Header != orig {
		t.Fatalf("SwapHeader twice = %+v, want %+v", c.Header, orig)
	}
}

func TestCopyIncludeBodyMatchesSerialize(t *testing.T) {
	c := sample()
	cp := c.Copy(true)
	if !reflect.DeepEqual(cp.Serialize(), c.Serialize()) {
		t.Fatalf("Copy(true).Serialize() != original.Serialize()")
	}
	// Mutating the copy's bytes value must not affect the original
	// (deep copy law).
	cp.Values[3].bytesVal[0] = 0xFF
	if c.Values[3].bytesVal[0] == 0xFF {
		t.Fatalf("Copy(true) aliased bytes payload with original")
	}
}

func TestCopyExcludeBodyClearsValues(t *testing.T) {
	c := sample()
	cp := c.Copy(false)
	if len(cp.Values) != 0 {
		t.Fatalf("Copy(false).Values len = %d, want 0", len(cp.Values))
	}
	if cp.Header != c.Header {
		t.Fatalf("Copy(false) header mismatch")
	}
}
