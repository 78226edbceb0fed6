package unionfind

import (
	"reflect"
	"testing"
)

func TestUnionIsTransitive(t *testing.T) {
	s := New()
	s.Union("charge:a", "charge:b")
	s.Union("charge:b", "invoice:c")
	s.Add("charge:lonely")

	if !s.Connected("charge:a", "invoice:c") {
		t.Fatal("expected a and c to share a cluster")
	}
	got := s.Clusters(2)
	want := [][]string{{"charge:a", "charge:b", "invoice:c"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestFindCompressesPath(t *testing.T) {
	s := New()
	s.Union("c", "d")
	s.Union("b", "c")
	s.Union("a", "b")
	if s.parent["d"] != "c" {
		t.Fatalf("expected a chain before Find, got parent %s", s.parent["d"])
	}

	root := s.Find("d")
	if root != "a" {
		t.Fatalf("expected root a, got %s", root)
	}
	for _, key := range []string{"a", "b", "c", "d"} {
		if s.parent[key] != root {
			t.Fatalf("expected %s to point at root %s, got %s", key, root, s.parent[key])
		}
	}
}

func TestClustersOrderingAndMinSize(t *testing.T) {
	s := New()
	s.Union("z1", "z2")
	s.Union("b2", "b1")
	s.Add("solo")

	got := s.Clusters(2)
	want := [][]string{{"b1", "b2"}, {"z1", "z2"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if all := s.Clusters(1); len(all) != 3 {
		t.Fatalf("expected three clusters with min size 1, got %v", all)
	}
	if s.Len() != 5 {
		t.Fatalf("expected 5 keys, got %d", s.Len())
	}
}

func TestUnionSameClusterIsNoop(t *testing.T) {
	s := New()
	s.Union("a", "b")
	s.Union("b", "a")
	if got := s.Clusters(2); len(got) != 1 || len(got[0]) != 2 {
		t.Fatalf("unexpected clusters %v", got)
	}
}
