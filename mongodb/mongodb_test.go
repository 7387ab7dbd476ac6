package mongodb

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/gocrud/ioc/bean"
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/logging"
)

type mockRepository struct {
	Client *mongo.Client `di:""`
	Audit  *mongo.Client `di:"mongodb.audit,optional"`
}

// 测试客户端注册为容器中的 Bean，创建时不连接服务器
func TestConfigure(t *testing.T) {
	app, err := core.NewApplicationBuilder().
		Configure(New(WithClient(DefaultName, "mongodb://localhost:27017", func(o *MongoOptions) {
			o.Timeout = time.Second
		}))).
		Configure(core.AddBean[*mockRepository]("repository")).
		Build()
	require.NoError(t, err)

	c := app.Context()
	require.NoError(t, c.Refresh())

	repo := bean.MustGet[*mockRepository](c, "repository")
	require.NotNil(t, repo.Client)
	assert.Nil(t, repo.Audit)
	assert.Same(t, repo.Client, bean.MustGet[*mongo.Client](c, BeanName(DefaultName)))

	factory := bean.MustGet[*MongoFactory](c, FactoryBeanName)
	assert.Equal(t, []string{DefaultName}, factory.Names())

	require.NoError(t, c.Close())
	factory.Each(func(name string, _ *mongo.Client) { t.Errorf("client %s not disconnected", name) })
}

// 测试配置校验
func TestBuilder_Add_Validate(t *testing.T) {
	builder := NewBuilder()

	// 测试缺少名称
	builder.Add("", "mongodb://localhost:27017", nil)
	// 测试缺少 uri
	builder.Add("empty", "", nil)
	// 连接池设置冲突
	builder.Add("pool", "mongodb://localhost:27017", func(o *MongoOptions) {
		o.MinPoolSize = 10
		o.MaxPoolSize = 2
	})
	builder.Add("ok", "mongodb://localhost:27017", nil)
	builder.Add("ok", "mongodb://localhost:27017", nil)

	_, err := builder.Build(logging.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mongo client name is required")
	assert.Contains(t, err.Error(), "mongo uri is required")
	assert.Contains(t, err.Error(), "exceeds max pool size")
	assert.Contains(t, err.Error(), "already configured")
	assert.Equal(t, []string{"ok"}, builder.Names())
}

// 测试真实服务器，需设置 MONGO_URI
func TestMongoFactory_Server(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}

	factory := NewMongoFactory(nil)
	opts := NewDefaultOptions("live", uri)
	opts.Ping = true
	require.NoError(t, factory.Register(*opts))

	client, err := factory.Get("live")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	coll := client.Database("ioc_test").Collection("items")
	_, err = coll.InsertOne(ctx, bson.M{"name": "a"})
	require.NoError(t, err)
	require.NoError(t, coll.Drop(ctx))
	require.NoError(t, factory.Destroy())
}
