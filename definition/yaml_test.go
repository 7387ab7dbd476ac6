package definition

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/bean"
	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/core"
)

type store struct {
	DSN     string
	Timeout time.Duration
	Tags    []string
	closed  bool
}

func (s *store) Close() error {
	s.closed = true
	return nil
}

type catalog struct {
	store *store
	Limit int
}

func newCatalog(s *store) *catalog {
	return &catalog{store: s}
}

type connection struct {
	Addr string
}

type pool struct {
	Size int
}

func (p *pool) Connection() *connection {
	return &connection{Addr: "pooled"}
}

func newRegistry() *TypeRegistry {
	r := NewTypeRegistry()
	Register[*store](r, "Store")
	Register[*catalog](r, "Catalog", newCatalog)
	Register[*pool](r, "Pool")
	Register[*connection](r, "Connection")
	r.RegisterFactory("newConnection", func(addr string) *connection { return &connection{Addr: addr} })
	return r
}

const document1 = `
beans:
  - name: store
    type: Store
    destroy_method: Close
    properties:
      - name: DSN
        value: "postgres://${db.host:localhost}/app"
      - name: Timeout
        value: 5s
      - name: Tags
        value: [a, b]
  - name: catalog
    type: Catalog
    scope: prototype
    args:
      - ref: store
    properties:
      - name: Limit
        value: 20
  - name: pool
    type: Pool
    lazy: true
    properties:
      - name: Size
        value: 4
  - name: pooled
    type: Connection
    factory_bean: pool
    factory_method: Connection
  - name: direct
    factory: newConnection
    args:
      - value: "10.0.0.1:6379"
    depends_on: [store]
`

// 测试文档解析为定义
func TestParse(t *testing.T) {
	defs, err := Parse(newRegistry(), strings.NewReader(document1))
	require.NoError(t, err)
	require.Len(t, defs, 5)

	st := defs[0]
	assert.Equal(t, "store", st.Name)
	assert.Equal(t, bean.TypeOf[*store](), st.Type)
	assert.Equal(t, "Close", st.DestroyMethod)
	require.Len(t, st.Properties, 3)
	assert.Equal(t, "DSN", st.Properties[0].Name)

	cat := defs[1]
	assert.Equal(t, bean.ScopePrototype, cat.Scope)
	assert.Equal(t, []any{bean.Reference("store")}, cat.ConstructorArgs)
	assert.Len(t, cat.Constructors, 1)

	assert.True(t, defs[2].Lazy)

	pooled := defs[3]
	assert.Equal(t, "pool", pooled.FactoryBean)
	assert.Equal(t, "Connection", pooled.FactoryMethod)
	assert.Empty(t, pooled.Constructors)

	direct := defs[4]
	assert.NotNil(t, direct.Factory)
	assert.Equal(t, bean.TypeOf[*connection](), direct.PredictedType())
	assert.Equal(t, []string{"store"}, direct.DependsOn)
}

// 测试从 YAML 加载的定义在容器中可用，并解析占位符
func TestYAMLSource_InContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(document1), 0o644))

	app, err := core.NewApplicationBuilder().
		ConfigureConfiguration(func(b *config.ConfigurationBuilder) {
			b.AddInMemory(map[string]any{"db": map[string]any{"host": "db.internal"}})
		}).
		AddSource(NewYAMLFile(newRegistry(), path)).
		Build()
	require.NoError(t, err)

	c := app.Context()
	require.NoError(t, c.Refresh())

	st := bean.MustGet[*store](c, "store")
	assert.Equal(t, "postgres://db.internal/app", st.DSN)
	assert.Equal(t, 5*time.Second, st.Timeout)
	assert.Equal(t, []string{"a", "b"}, st.Tags)

	c1 := bean.MustGet[*catalog](c, "catalog")
	c2 := bean.MustGet[*catalog](c, "catalog")
	assert.NotSame(t, c1, c2)
	assert.Same(t, st, c1.store)
	assert.Equal(t, 20, c1.Limit)

	assert.Equal(t, "pooled", bean.MustGet[*connection](c, "pooled").Addr)
	assert.Equal(t, "10.0.0.1:6379", bean.MustGet[*connection](c, "direct").Addr)
	assert.Equal(t, 4, bean.MustGet[*pool](c, "pool").Size)

	require.NoError(t, c.Close())
	assert.True(t, st.closed)
}

// 测试可选文件与空文档
func TestYAMLSource_Optional(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.yaml")

	defs, err := NewYAMLFile(newRegistry(), missing, true).Definitions()
	require.NoError(t, err)
	assert.Empty(t, defs)

	_, err = NewYAMLFile(newRegistry(), missing).Definitions()
	assert.Error(t, err)

	defs, err = NewYAML(newRegistry(), nil).Definitions()
	require.NoError(t, err)
	assert.Empty(t, defs)
}

// 测试非法文档
func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "missing name",
			doc:  "beans:\n  - type: Store\n",
			want: "Name is required",
		},
		{
			name: "missing type",
			doc:  "beans:\n  - name: a\n",
			want: "Type is required",
		},
		{
			name: "bad scope",
			doc:  "beans:\n  - name: a\n    type: Store\n    scope: request\n",
			want: "must be one of",
		},
		{
			name: "ref and value",
			doc:  "beans:\n  - name: a\n    type: Catalog\n    args:\n      - ref: store\n        value: 1\n",
			want: "cannot be combined",
		},
		{
			name: "factory method without bean",
			doc:  "beans:\n  - name: a\n    type: Store\n    factory_method: Open\n",
			want: "FactoryBean is required",
		},
		{
			name: "unknown type",
			doc:  "beans:\n  - name: a\n    type: Widget\n",
			want: `unknown type "Widget"`,
		},
		{
			name: "unknown factory",
			doc:  "beans:\n  - name: a\n    factory: newWidget\n",
			want: `unknown factory "newWidget"`,
		},
		{
			name: "duplicate",
			doc:  "beans:\n  - name: a\n    type: Store\n  - name: a\n    type: Store\n",
			want: "declared twice",
		},
		{
			name: "unknown field",
			doc:  "beans:\n  - name: a\n    type: Store\n    singleton: true\n",
			want: "invalid yaml",
		},
		{
			name: "property without name",
			doc:  "beans:\n  - name: a\n    type: Store\n    properties:\n      - value: 1\n",
			want: "property without name",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(newRegistry(), strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// 测试注册表
func TestTypeRegistry(t *testing.T) {
	r := newRegistry()
	assert.Equal(t, []string{"Catalog", "Connection", "Pool", "Store"}, r.Aliases())

	typ, ctors, ok := r.Type("Catalog")
	require.True(t, ok)
	assert.Equal(t, bean.TypeOf[*catalog](), typ)
	assert.Len(t, ctors, 1)

	_, ok = r.Factory("newConnection")
	assert.True(t, ok)

	assert.Panics(t, func() { Register[*store](r, "Bad", "not a func") })
	assert.Panics(t, func() { r.RegisterFactory("bad", func() {}) })
}
