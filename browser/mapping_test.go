package browser

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/xk6-headless/api"
	"github.com/grafana/xk6-headless/common"

	k6common "go.k6.io/k6/js/common"
	k6modules "go.k6.io/k6/js/modules"
	k6lib "go.k6.io/k6/lib"
)

// customMappings maps the page methods whose JS name is not the method
// name with a lowercase first letter.
func customMappings() map[string]string {
	return map[string]string{
		"hTML": "html",
		"uRL":  "url",
	}
}

// testVU is a VU running outside of a test run.
type testVU struct {
	k6modules.VU

	ctx context.Context
	rt  *goja.Runtime
}

func (vu *testVU) Context() context.Context { return vu.ctx }
func (vu *testVU) Runtime() *goja.Runtime    { return vu.rt }
func (vu *testVU) State() *k6lib.State       { return nil }

func newTestVU(t *testing.T) moduleVU {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	rt := goja.New()
	rt.SetFieldNameMapper(k6common.FieldNameMapper{})

	return moduleVU{VU: &testVU{ctx: ctx, rt: rt}, root: New()}
}

// TestMappings tests that all the methods of api.Page are mapped to the
// module, and nothing else.
func TestMappings(t *testing.T) {
	t.Parallel()

	var (
		typ    = reflect.TypeOf((*api.Page)(nil)).Elem()
		mapped = mapPage(newTestVU(t), (*common.Page)(nil), time.Second)
		custom = customMappings()
		tested = make(map[string]bool)
	)
	for i := 0; i < typ.NumMethod(); i++ {
		m := toFirstLetterLower(typ.Method(i).Name)
		if cm, ok := custom[m]; ok {
			m = cm
		}
		if _, ok := mapped[m]; !ok {
			t.Errorf("method %q not found", m)
		}
		tested[m] = true
	}
	for m := range mapped {
		if !tested[m] {
			t.Errorf("method %q is redundant", m)
		}
	}
}

func toFirstLetterLower(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func TestModuleNewPage(t *testing.T) {
	t.Parallel()

	vu := newTestVU(t)
	rt := vu.Runtime()
	mi := vu.root.NewModuleInstance(vu.VU)
	require.NoError(t, rt.Set("headless", mi.Exports().Default))

	v, err := rt.RunString(`
		const page = headless.newPage({ engine: "sim", width: 640, height: 480, timeout: 5000, settle: 0 });
		page.open("data:text/html,<title>Hi</title><p%20id=x%20class=greet>hello</p>");
		const result = {
			title: page.title(),
			sum: page.evaluate("1 + 2"),
			obj: page.evaluate("({ a: [1, 2] })"),
			text: page.elementText("#x"),
			cls: page.elementAttribute("#x", "class"),
			missing: page.elementAttribute("#x", "nope"),
			shot: page.screenshot().byteLength > 0,
		};
		page.close();
		result;
	`)
	require.NoError(t, err)

	var got struct {
		Title   string         `json:"title"`
		Sum     int64          `json:"sum"`
		Obj     map[string]any `json:"obj"`
		Text    string         `json:"text"`
		Cls     string         `json:"cls"`
		Missing any            `json:"missing"`
		Shot    bool           `json:"shot"`
	}
	require.NoError(t, rt.ExportTo(v, &got))
	assert.Equal(t, "Hi", got.Title)
	assert.Equal(t, int64(3), got.Sum)
	assert.Equal(t, []any{float64(1), float64(2)}, got.Obj["a"])
	assert.Equal(t, "hello", got.Text)
	assert.Equal(t, "greet", got.Cls)
	assert.Nil(t, got.Missing)
	assert.True(t, got.Shot)
}

func TestModuleNewPageErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		script string
		errMsg string
	}{
		{
			name:   "unsupported_engine",
			script: `headless.newPage({ engine: "webkit" })`,
			errMsg: `unsupported engine "webkit"`,
		},
		{
			name:   "invalid_viewport",
			script: `headless.newPage({ engine: "sim", width: 0 })`,
			errMsg: "invalid viewport",
		},
		{
			name: "script_exception",
			script: `
				const page = headless.newPage({ engine: "sim", settle: 0 });
				try {
					page.evaluate("throw new Error('boom')");
				} finally {
					page.close();
				}
			`,
			errMsg: "boom",
		},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			vu := newTestVU(t)
			mi := vu.root.NewModuleInstance(vu.VU)
			require.NoError(t, vu.Runtime().Set("headless", mi.Exports().Default))

			_, err := vu.Runtime().RunString(tc.script)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}

func TestParseOptions(t *testing.T) {
	t.Parallel()

	rt := goja.New()
	v, err := rt.RunString(`({
		engine: "sim",
		width: 800,
		height: 600,
		timeout: 1500,
		fullPage: true,
		userAgent: "ua",
		headless: false,
		args: ["--lang=en"],
	})`)
	require.NoError(t, err)

	opts := NewOptions()
	require.NoError(t, opts.ParseOptions(rt, v))
	assert.Equal(t, EngineSim, opts.Engine)
	assert.Equal(t, int64(800), opts.Page.Width)
	assert.Equal(t, int64(600), opts.Page.Height)
	assert.Equal(t, 1500*time.Millisecond, opts.Page.LoadTimeout)
	assert.True(t, opts.Page.FullPage)
	assert.Equal(t, "ua", opts.Page.UserAgent.String)
	assert.False(t, opts.Launch.Headless)
	assert.Equal(t, []string{"--lang=en"}, opts.Launch.Args)

	require.NoError(t, opts.ParseOptions(rt, goja.Undefined()))
}
