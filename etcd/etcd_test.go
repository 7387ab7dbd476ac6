package etcd_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/gocrud/ioc/bean"
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/etcd"
	"github.com/gocrud/ioc/logging"
)

// MockService 模拟依赖 Etcd 客户端的服务
type MockService struct {
	Master *clientv3.Client `di:"etcd.master"`
	Slave  *clientv3.Client `di:"etcd.slave,optional"`
}

// 测试客户端注册为容器中的 Bean
func TestEtcdConfiguration(t *testing.T) {
	app, err := core.NewApplicationBuilder().
		Configure(etcd.New(
			etcd.WithClient("master", etcd.WithEndpoints("localhost:2379", "localhost:22379")),
		)).
		Configure(core.AddBean[*MockService]("service")).
		Build()
	require.NoError(t, err)

	c := app.Context()
	require.NoError(t, c.Refresh())

	svc := bean.MustGet[*MockService](c, "service")
	require.NotNil(t, svc.Master)
	assert.Nil(t, svc.Slave)
	assert.Equal(t, []string{"localhost:2379", "localhost:22379"}, svc.Master.Endpoints())

	clients, err := bean.OfType[*clientv3.Client](c)
	require.NoError(t, err)
	assert.Len(t, clients, 1)
	assert.Same(t, svc.Master, clients[etcd.BeanName("master")])

	factory := bean.MustGet[*etcd.EtcdClientFactory](c, etcd.FactoryBeanName)
	var seen []string
	factory.Each(func(name string, _ *clientv3.Client) { seen = append(seen, name) })
	assert.Equal(t, []string{"master"}, seen)

	require.NoError(t, c.Close())
	factory.Each(func(name string, _ *clientv3.Client) { t.Errorf("client %s not closed", name) })
}

// 测试配置错误
func TestEtcdBuilder_Errors(t *testing.T) {
	logger := logging.NewNop()
	builder := etcd.NewBuilder()

	// 添加无效配置
	builder.AddClient("invalid", func(o *etcd.EtcdClientOptions) {
		o.Endpoints = nil // 必填项缺失
	})

	// 添加重复配置
	builder.AddClient("duplicate", nil)
	builder.AddClient("duplicate", nil)

	_, err := builder.Build(logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "etcd endpoints are required")
	assert.Contains(t, err.Error(), "already configured")
}

// 测试真实服务器，需设置 ETCD_ENDPOINTS
func TestEtcdFactory_Server(t *testing.T) {
	endpoints := os.Getenv("ETCD_ENDPOINTS")
	if endpoints == "" {
		t.Skip("ETCD_ENDPOINTS not set")
	}

	factory := etcd.NewEtcdClientFactory(nil)
	opts := etcd.NewDefaultOptions("live")
	opts.Endpoints = strings.Split(endpoints, ",")
	require.NoError(t, factory.Register(*opts))

	client, err := factory.Get("live")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = client.Put(ctx, "/ioc/test", "v")
	require.NoError(t, err)
	resp, err := client.Get(ctx, "/ioc/test")
	require.NoError(t, err)
	require.Len(t, resp.Kvs, 1)
	assert.Equal(t, "v", string(resp.Kvs[0].Value))
	require.NoError(t, factory.Destroy())
}
