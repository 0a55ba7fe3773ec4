package interp

import (
	"testing"

	"cyberfarm.ai/internal/protocol"
	"cyberfarm.ai/internal/script/parser"
)

func TestCheck_CleanScript(t *testing.T) {
	prog, err := parser.Parse("for i in range(3):\n    if i == 1:\n        plant('grass', i, 0)\n    else:\n        wait()\n")
	if err != nil {
		t.Fatal(err)
	}
	if errs := Check(prog); len(errs) != 0 {
		t.Fatalf("unexpected diagnostics: %v", errs)
	}
}

func TestCheck_ReportsEveryBranch(t *testing.T) {
	src := `x = 1
if x > 0:
    wait()
else:
    fly(1)
while x:
    wait()
for i in range(2):
    y = i + 1
z = x != 2
`
	prog, err := parser.Parse(src)
	if err != nil {
		t.Fatal(err)
	}
	errs := Check(prog)
	want := []struct {
		line int
		code string
	}{
		{5, protocol.ErrUnknownFunction},
		{6, protocol.ErrUnsupportedSyntax},
		{9, protocol.ErrUnsupportedExpression},
		{10, protocol.ErrUnsupportedExpression},
	}
	if len(errs) != len(want) {
		t.Fatalf("diagnostics = %v", errs)
	}
	for i, w := range want {
		if errs[i].Line != w.line || errs[i].Code != w.code {
			t.Fatalf("diagnostic %d = line %d %s, want line %d %s", i, errs[i].Line, errs[i].Code, w.line, w.code)
		}
	}
}
