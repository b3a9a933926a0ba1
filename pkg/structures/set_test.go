package structures

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var o = struct{}{}

var checkSetAddTests = map[string]struct {
	add []string
	out Set[string]
	non []string
}{
	"{}": {},
	"{a}": {
		add: []string{"a"},
		out: Set[string]{"a": o},
		non: []string{"", "b"},
	},
	"{a a}": {
		add: []string{"a", "a"},
		out: Set[string]{"a": o},
		non: []string{"b"},
	},
	"{a b a}": {
		add: []string{"a", "b", "a"},
		out: Set[string]{"a": o, "b": o},
		non: []string{"c"},
	},
}

func TestSetAdd(t *testing.T) {
	t.Parallel()
	for name, test := range checkSetAddTests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s := make(Set[string])
			for _, elem := range test.add {
				s.Add(elem)
			}
			if got, want := s, test.out; !cmp.Equal(got, want, cmpopts.EquateEmpty()) {
				t.Errorf("diff (-want +got):\n%+v", cmp.Diff(want, got))
			}
			if got, want := NewSet(test.add...), test.out; !cmp.Equal(
				got, want, cmpopts.EquateEmpty(),
			) {
				t.Errorf("NewSet diff (-want +got):\n%+v", cmp.Diff(want, got))
			}

			for _, elem := range test.add {
				if !s.Has(elem) {
					t.Errorf("set is missing elem: %q", elem)
				}
			}
			for _, elem := range test.non {
				if s.Has(elem) {
					t.Errorf("set has spurious elem: %q", elem)
				}
			}
		})
	}
}

func TestSetRemove(t *testing.T) {
	t.Parallel()
	s := NewSet("a", "b")
	s.Remove("a")
	s.Remove("c")
	if got, want := s, NewSet("b"); !cmp.Equal(got, want) {
		t.Errorf("diff (-want +got):\n%+v", cmp.Diff(want, got))
	}
}
