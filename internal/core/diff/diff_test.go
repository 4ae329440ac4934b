package diff

import (
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/Ning0612/restoredrill/internal/core/snapshot"
	"github.com/Ning0612/restoredrill/internal/domain"
)

func file(name, digest string) *domain.Entry {
	return &domain.Entry{Name: name, Kind: domain.KindFile, Digest: digest}
}

func dir(name string, children ...*domain.Entry) *domain.Entry {
	return &domain.Entry{Name: name, Kind: domain.KindDirectory, Children: children}
}

func tree(children ...*domain.Entry) *domain.Tree {
	return &domain.Tree{Path: "/test", Root: dir("test", children...)}
}

func TestCompare_Identical(t *testing.T) {
	expected := tree(file("a.txt", "aa"), dir("sub", file("b.txt", "bb")))
	actual := tree(file("a.txt", "aa"), dir("sub", file("b.txt", "bb")))

	ok, m := Compare(expected, actual)
	if !ok || m != nil {
		t.Fatalf("Expected identical trees, got mismatch: %v", m)
	}
}

func TestCompare_IgnoresTreePathAndRootName(t *testing.T) {
	expected := tree(file("a.txt", "aa"))
	actual := &domain.Tree{Path: "/elsewhere", Root: dir("other", file("a.txt", "aa"))}

	if ok, m := Compare(expected, actual); !ok {
		t.Fatalf("Root name and path must not take part in comparison: %v", m)
	}
}

func TestCompare_CountMismatch(t *testing.T) {
	tests := []struct {
		name     string
		expected *domain.Tree
		actual   *domain.Tree
	}{
		{"extra actual entry", tree(file("a", "1")), tree(file("a", "1"), file("b", "2"))},
		{"missing actual entry", tree(file("a", "1"), file("b", "2")), tree(file("a", "1"))},
		{"empty actual", tree(file("a", "1")), tree()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, m := Compare(tt.expected, tt.actual)
			if ok {
				t.Fatal("Expected mismatch, got identical")
			}
			if m.Kind != MismatchCount {
				t.Errorf("Expected count mismatch, got %s", m.Kind)
			}
			if m.Path != RootLabel {
				t.Errorf("Expected path %s, got %s", RootLabel, m.Path)
			}
			if m.ExpectedCount != len(tt.expected.Root.Children) || m.ActualCount != len(tt.actual.Root.Children) {
				t.Errorf("Unexpected counts: %d/%d", m.ExpectedCount, m.ActualCount)
			}
		})
	}
}

func TestCompare_RenamedFileIsNameMismatch(t *testing.T) {
	expected := tree(file("a.txt", "aa"), file("b.txt", "bb"))
	actual := tree(file("a.txt", "aa"), file("c.txt", "bb"))

	ok, m := Compare(expected, actual)
	if ok {
		t.Fatal("Expected mismatch")
	}
	if m.Kind != MismatchName {
		t.Fatalf("Expected name mismatch, got %s", m.Kind)
	}
	if m.Expected.Name != "b.txt" || m.Actual.Name != "c.txt" {
		t.Errorf("Wrong entries reported: %s / %s", m.Expected.Name, m.Actual.Name)
	}
}

func TestCompare_DigestMismatch(t *testing.T) {
	expected := tree(file("a.txt", "aa"))
	actual := tree(file("a.txt", "ab"))

	ok, m := Compare(expected, actual)
	if ok {
		t.Fatal("Expected mismatch")
	}
	if m.Kind != MismatchDigest {
		t.Fatalf("Expected digest mismatch, got %s", m.Kind)
	}
	if !strings.Contains(m.Error(), "hash mismatch") {
		t.Errorf("Unexpected diagnostic: %s", m.Error())
	}
}

func TestCompare_TypeCheckedBeforeDigest(t *testing.T) {
	expected := tree(file("x", "aa"))
	actual := tree(dir("x"))

	_, m := Compare(expected, actual)
	if m == nil || m.Kind != MismatchType {
		t.Fatalf("Expected type mismatch, got %v", m)
	}
	if !strings.Contains(m.Error(), "(file)") || !strings.Contains(m.Error(), "(dir)") {
		t.Errorf("Diagnostic should name both kinds: %s", m.Error())
	}
}

func TestCompare_DirectoryDigestsIgnored(t *testing.T) {
	e := dir("d")
	e.Digest = "stale"
	expected := tree(e)
	actual := tree(dir("d"))

	if ok, m := Compare(expected, actual); !ok {
		t.Fatalf("Directory digests must be ignored: %v", m)
	}
}

func TestCompare_ShallowMismatchReportedBeforeDeep(t *testing.T) {
	// sub/deep.txt differs, but so does a later sibling at the root.
	expected := tree(dir("sub", file("deep.txt", "11")), file("z.txt", "zz"))
	actual := tree(dir("sub", file("deep.txt", "22")), file("zz.txt", "zz"))

	_, m := Compare(expected, actual)
	if m == nil {
		t.Fatal("Expected mismatch")
	}
	if m.Kind != MismatchName || m.Path != RootLabel {
		t.Errorf("Expected root name mismatch first, got %s at %s", m.Kind, m.Path)
	}
}

func TestCompare_NestedPathInDiagnostic(t *testing.T) {
	expected := tree(dir("a", dir("b", file("c.txt", "1"))))
	actual := tree(dir("a", dir("b", file("c.txt", "2"))))

	_, m := Compare(expected, actual)
	if m == nil {
		t.Fatal("Expected mismatch")
	}
	if m.Path != RootLabel+"/a/b" {
		t.Errorf("Expected path %s/a/b, got %s", RootLabel, m.Path)
	}
	if m.Kind != MismatchDigest {
		t.Errorf("Expected digest mismatch, got %s", m.Kind)
	}
}

func TestCompare_NilTrees(t *testing.T) {
	if ok, _ := Compare(nil, nil); !ok {
		t.Error("Two nil trees should compare equal")
	}
	if ok, m := Compare(tree(file("a", "1")), nil); ok || m.Kind != MismatchCount {
		t.Errorf("Expected count mismatch against nil tree, got %v", m)
	}
}

func TestCompare_BuiltTrees(t *testing.T) {
	fs := afero.NewMemMapFs()
	write := func(path, content string) {
		if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	write("/a/one.txt", "one")
	write("/a/sub/two.txt", "two")
	write("/b/one.txt", "one")
	write("/b/sub/two.txt", "twO")

	builder := snapshot.NewBuilder(fs)
	ctx := context.Background()
	a, err := builder.Build(ctx, "/a")
	if err != nil {
		t.Fatalf("Build /a: %v", err)
	}
	b, err := builder.Build(ctx, "/b")
	if err != nil {
		t.Fatalf("Build /b: %v", err)
	}

	if ok, m := Compare(a, a); !ok {
		t.Fatalf("Tree must equal itself: %v", m)
	}

	_, m := Compare(a, b)
	if m == nil || m.Kind != MismatchDigest || m.Path != RootLabel+"/sub" {
		t.Fatalf("Expected digest mismatch in sub, got %v", m)
	}
}

func TestMismatchKind_String(t *testing.T) {
	kinds := map[MismatchKind]string{
		MismatchCount:    "count",
		MismatchName:     "name",
		MismatchType:     "type",
		MismatchDigest:   "digest",
		MismatchKind(42): "unknown",
	}
	for k, want := range kinds {
		if got := k.String(); got != want {
			t.Errorf("%d.String() = %s, want %s", k, got, want)
		}
	}
}
