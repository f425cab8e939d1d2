package rewrite

import (
	"errors"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseFunc(t *testing.T, src string) (*token.FileSet, *ast.FuncDecl) {
	t.Helper()
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "stack_test.go", "package p\n\nimport \"testing\"\n\n"+src, 0)
	require.NoError(t, err)
	for _, d := range file.Decls {
		if fn, ok := d.(*ast.FuncDecl); ok {
			return fset, fn
		}
	}
	t.Fatal("no function declared")
	return nil, nil
}

// TestParseFeature tests block classification.
func TestParseFeature(t *testing.T) {
	fset, fn := parseFunc(t, `func TestPush(tt *testing.T) {
	s := NewStack()
given: "a subscriber"
	sub := &Sub{}
and: "it is subscribed"
	s.Subscribe(sub)
when:
	s.Push(1)
then: "the size grows"
	s.Len() == 1
then:
expect:
	s.Peek() == 1
cleanup:
	s.Close()
}`)
	require.True(t, IsFeature(fn))

	_, err := ParseFeature(fset, fn)
	require.Error(t, err, "given: after unlabeled statements must be rejected")

	fset, fn = parseFunc(t, `func TestPush(tt *testing.T) {
given: "a subscriber"
	s := NewStack()
	sub := &Sub{}
and: "it is subscribed"
	s.Subscribe(sub)
when:
	s.Push(1)
then: "the size grows"
	s.Len() == 1
then:
expect:
	s.Peek() == 1
cleanup:
	s.Close()
}`)
	feature, err := ParseFeature(fset, fn)
	require.NoError(t, err)

	assert.Equal(t, "TestPush", feature.Name())
	assert.Equal(t, "tt", feature.TParam)

	var kinds []BlockKind
	for _, b := range feature.Blocks {
		kinds = append(kinds, b.Kind)
	}
	assert.Equal(t, []BlockKind{BlockSetup, BlockWhen, BlockThen, BlockThen, BlockExpect, BlockCleanup}, kinds)

	setup := feature.Blocks[0]
	assert.Equal(t, []string{"a subscriber", "it is subscribed"}, setup.Descriptions)
	assert.Len(t, setup.Stmts, 3)
	assert.Equal(t, []string{"the size grows"}, feature.Blocks[2].Descriptions)
	assert.Empty(t, feature.Blocks[3].Stmts)
	assert.Len(t, feature.Blocks[4].Stmts, 1)
}

// TestParseFeature_ImplicitSetup tests statements before the first label.
func TestParseFeature_ImplicitSetup(t *testing.T) {
	fset, fn := parseFunc(t, `func TestSum(t *testing.T) {
	a, b := 1, 2
expect:
	a+b == 3
}`)
	feature, err := ParseFeature(fset, fn)
	require.NoError(t, err)
	require.Len(t, feature.Blocks, 2)

	assert.Equal(t, BlockSetup, feature.Blocks[0].Kind)
	assert.Nil(t, feature.Blocks[0].Label)
	assert.Equal(t, BlockExpect, feature.Blocks[1].Kind)
}

// TestParseFeature_Errors tests rejected block layouts.
func TestParseFeature_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantMsg string
	}{
		{
			name:    "where block",
			src:     "func TestX(t *testing.T) {\nexpect:\n\ttrue\nwhere:\n\tx := 1\n}",
			wantMsg: "where: blocks are not supported",
		},
		{
			name:    "then without when",
			src:     "func TestX(t *testing.T) {\ngiven:\n\tx := 1\nthen:\n\tx == 1\n}",
			wantMsg: "then: must follow when:",
		},
		{
			name:    "when without then",
			src:     "func TestX(t *testing.T) {\nwhen:\n\tx := 1\n}",
			wantMsg: "when: must be followed by then:",
		},
		{
			name:    "when followed by expect",
			src:     "func TestX(t *testing.T) {\nwhen:\n\tx := 1\nexpect:\n\tx == 1\n}",
			wantMsg: "when: must be followed by then:",
		},
		{
			name:    "block after cleanup",
			src:     "func TestX(t *testing.T) {\nexpect:\n\ttrue\ncleanup:\n\tclose()\nexpect:\n\ttrue\n}",
			wantMsg: "expect: cannot follow cleanup:",
		},
		{
			name:    "and first",
			src:     "func TestX(t *testing.T) {\nand:\n\tx := 1\n}",
			wantMsg: "and: must follow another block",
		},
		{
			name:    "unnamed testing param",
			src:     "func TestX(*testing.T) {\nexpect:\n\ttrue\n}",
			wantMsg: "must take a named *testing.T parameter",
		},
		{
			name:    "blank testing param",
			src:     "func TestX(_ *testing.T) {\nexpect:\n\ttrue\n}",
			wantMsg: "must take a named *testing.T parameter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fset, fn := parseFunc(t, tt.src)
			_, err := ParseFeature(fset, fn)
			if err == nil {
				t.Fatal("ParseFeature() error = nil, want error")
			}
			var rwErr *RewriteError
			if !errors.As(err, &rwErr) {
				t.Fatalf("error type = %T, want *RewriteError", err)
			}
			if !strings.Contains(rwErr.Message, tt.wantMsg) {
				t.Errorf("Message = %q, want it to contain %q", rwErr.Message, tt.wantMsg)
			}
			if rwErr.File != "stack_test.go" || rwErr.Line == 0 {
				t.Errorf("error position not set: %s", rwErr.Error())
			}
		})
	}
}

// TestIsFeature tests feature detection.
func TestIsFeature(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want bool
	}{
		{"labeled test", "func TestX(t *testing.T) {\nexpect:\n\ttrue\n}", true},
		{"plain test", "func TestX(t *testing.T) {\n\tt.Log(1)\n}", false},
		{"user label", "func TestX(t *testing.T) {\nouter:\n\tfor {\n\t\tbreak outer\n\t}\n}", false},
		{"not a test", "func helper(t *testing.T) {\nexpect:\n\ttrue\n}", false},
		{"method", "type S struct{}\n\nfunc (S) TestX(t *testing.T) {\nexpect:\n\ttrue\n}", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, fn := parseFunc(t, tt.src)
			if got := IsFeature(fn); got != tt.want {
				t.Errorf("IsFeature() = %v, want %v", got, tt.want)
			}
		})
	}
}
