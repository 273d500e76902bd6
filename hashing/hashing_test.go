package hashing

import (
	"testing"
)

func TestHashDataDeterministic(t *testing.T) {
	first := map[string]interface{}{"a": "1", "b": "2", "c": "3"}
	// same content, different insertion order
	second := map[string]interface{}{}
	second["c"] = "3"
	second["a"] = "1"
	second["b"] = "2"

	h1, err := HashData(first)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := HashData(second)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatalf("insertion order changed the digest: %s != %s", h1, h2)
	}
}

func TestHashDataDiffers(t *testing.T) {
	h1, err := HashData(map[string]interface{}{"a": "1"})
	if err != nil {
		t.Fatal(err)
	}
	h2, err := HashData(map[string]interface{}{"a": "2"})
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Fatalf("different content produced the same digest")
	}
}

func TestCanonicalJSONSortsKeys(t *testing.T) {
	encoded, err := CanonicalJSON(map[string]interface{}{"b": "2", "a": "1"})
	if err != nil {
		t.Fatal(err)
	}
	if string(encoded) != `{"a":"1","b":"2"}` {
		t.Fatalf("unexpected canonical encoding: %s", encoded)
	}
}

func TestHashBytes(t *testing.T) {
	if HashBytes([]byte("abc")) != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatalf("sha256 of abc mismatched the known digest")
	}
}
