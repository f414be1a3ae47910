package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/regraft/internal/semtree"
)

// recordingRule notes every declaration it checks and emits one info
// finding per function.
type recordingRule struct {
	checked []string
}

func (r *recordingRule) Name() string              { return "recording" }
func (r *recordingRule) DefaultSeverity() Severity { return SeverityInfo }

func (r *recordingRule) Check(_ context.Context, n *semtree.Node) ([]Diagnostic, error) {
	r.checked = append(r.checked, n.Name)
	if n.Kind != semtree.KindFunction {
		return nil, nil
	}
	return []Diagnostic{{Rule: "recording", Severity: SeverityInfo, Message: n.Name}}, nil
}

type failingRule struct{ err error }

func (r failingRule) Name() string              { return "failing" }
func (r failingRule) DefaultSeverity() Severity { return SeverityError }
func (r failingRule) Check(_ context.Context, _ *semtree.Node) ([]Diagnostic, error) {
	return nil, r.err
}

const checkerSource = `import os

class Widget:
    def render(self):
        return 1

def main():
    return 2
`

func TestCollect_DefaultWalkVisitsAllDeclarations(t *testing.T) {
	t.Parallel()
	_, root := buildFile(t, "demo.py", checkerSource, "python")

	rule := &recordingRule{}
	c := NewChecker(rule)
	diags, err := c.Collect(context.Background(), root, nil, nil)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"demo.py", "Widget", "render", "main"}, rule.checked)
	assert.Len(t, diags, 2, "one finding per function")
}

func TestCollect_Actions(t *testing.T) {
	t.Parallel()
	_, root := buildFile(t, "demo.py", checkerSource, "python")

	cases := []struct {
		name    string
		action  DeclarationAction
		checked []string
	}{
		{"check without descent", CheckWithoutDescent, []string{"demo.py", "Widget", "main"}},
		{"skip with descent", SkipWithDescent, []string{"demo.py", "render", "main"}},
		{"skip entirely", SkipEntirely, []string{"demo.py", "main"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule := &recordingRule{}
			c := NewChecker(rule)
			enter := func(n *semtree.Node) DeclarationAction {
				if n.Kind == semtree.KindClass {
					return tc.action
				}
				return CheckAndDescend
			}
			_, err := c.Collect(context.Background(), root, enter, nil)
			require.NoError(t, err)
			assert.ElementsMatch(t, tc.checked, rule.checked)
		})
	}
}

func TestCollect_ExitRunsAfterSubtree(t *testing.T) {
	t.Parallel()
	_, root := buildFile(t, "demo.py", checkerSource, "python")

	var order []string
	enter := func(n *semtree.Node) DeclarationAction {
		order = append(order, "enter "+n.Name)
		return CheckAndDescend
	}
	exit := func(n *semtree.Node) {
		order = append(order, "exit "+n.Name)
	}
	_, err := NewChecker().Collect(context.Background(), root, enter, exit)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"enter demo.py",
		"enter Widget", "enter render", "exit render", "exit Widget",
		"enter main", "exit main",
		"exit demo.py",
	}, order)
}

func TestCollect_RuleErrorAborts(t *testing.T) {
	t.Parallel()
	_, root := buildFile(t, "demo.py", checkerSource, "python")

	sentinel := errors.New("script exploded")
	c := NewChecker(failingRule{err: sentinel})
	_, err := c.Collect(context.Background(), root, nil, nil)
	require.ErrorIs(t, err, sentinel)
}

func TestChecker_DisableAndOverride(t *testing.T) {
	t.Parallel()
	_, root := buildFile(t, "demo.py", checkerSource, "python")

	rule := &recordingRule{}
	c := NewChecker(rule)
	c.Disable("recording")
	diags, err := c.Collect(context.Background(), root, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, diags)

	rule2 := &recordingRule{}
	c2 := NewChecker(rule2)
	c2.OverrideSeverity("recording", SeverityError)
	diags, err = c2.Collect(context.Background(), root, nil, nil)
	require.NoError(t, err)
	for _, ds := range diags {
		for _, d := range ds {
			assert.Equal(t, SeverityError, d.Severity)
		}
	}
}

func TestCollect_Cancellation(t *testing.T) {
	t.Parallel()
	_, root := buildFile(t, "demo.py", checkerSource, "python")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewChecker(&recordingRule{}).Collect(ctx, root, nil, nil)
	require.ErrorIs(t, err, context.Canceled)
}
