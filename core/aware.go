package core

// ContextAware 由需要持有 ApplicationContext 的 bean 实现，在初始化前注入。
type ContextAware interface {
	SetApplicationContext(ctx *ApplicationContext)
}

// contextAwareProcessor 每次刷新最先登记的后置处理器
type contextAwareProcessor struct {
	ctx *ApplicationContext
}

func (p *contextAwareProcessor) PostProcessBeforeInitialization(b any, name string) (any, error) {
	if aware, ok := b.(ContextAware); ok {
		aware.SetApplicationContext(p.ctx)
	}
	return b, nil
}

func (p *contextAwareProcessor) PostProcessAfterInitialization(b any, name string) (any, error) {
	return b, nil
}
