package bean

// PostProcessor 在每个 bean 初始化前后被调用，可以替换实例（例如返回代理）。
// 返回 nil 表示保留当前实例。
type PostProcessor interface {
	PostProcessBeforeInitialization(bean any, name string) (any, error)
	PostProcessAfterInitialization(bean any, name string) (any, error)
}

// FactoryPostProcessor 在创建任何普通 bean 之前修改定义，刷新时调用一次。
type FactoryPostProcessor interface {
	PostProcessBeanFactory(factory ConfigurableBeanFactory) error
}

// PostProcessorFuncs 用函数实现 PostProcessor，未设置的钩子原样返回。
type PostProcessorFuncs struct {
	Before func(bean any, name string) (any, error)
	After  func(bean any, name string) (any, error)
}

func (p *PostProcessorFuncs) PostProcessBeforeInitialization(bean any, name string) (any, error) {
	if p.Before == nil {
		return bean, nil
	}
	return p.Before(bean, name)
}

func (p *PostProcessorFuncs) PostProcessAfterInitialization(bean any, name string) (any, error) {
	if p.After == nil {
		return bean, nil
	}
	return p.After(bean, name)
}

// FactoryPostProcessorFunc 用函数实现 FactoryPostProcessor。
type FactoryPostProcessorFunc func(factory ConfigurableBeanFactory) error

func (fn FactoryPostProcessorFunc) PostProcessBeanFactory(factory ConfigurableBeanFactory) error {
	return fn(factory)
}
