// Package pipeline 提供视觉流水线的工作图像与阶段结果管理
//
// Pipeline 只是阶段间共享数据的容器：工作图像、命名结果与松散属性。
// 阶段的执行顺序由调用方编排。
package pipeline

import (
	"sync"

	"gocv.io/x/gocv"
)

// Result 流水线阶段的命名结果
type Result struct {
	// Image 阶段输出图像，nil 表示该阶段不产出图像
	Image *gocv.Mat
	// Model 阶段输出的几何模型，类型由阶段定义；nil 表示执行过但无结果
	Model interface{}
}

// Pipeline 视觉流水线上下文
type Pipeline struct {
	mu         sync.RWMutex
	working    *gocv.Mat
	results    map[string]*Result
	properties map[string]interface{}
}

// NewPipeline 创建流水线上下文
func NewPipeline() *Pipeline {
	return &Pipeline{
		results:    make(map[string]*Result),
		properties: make(map[string]interface{}),
	}
}

// SetWorkingImage 设置工作图像
// 流水线接管 Mat 的所有权，旧工作图像会被释放。
func (p *Pipeline) SetWorkingImage(mat gocv.Mat) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.working != nil {
		p.working.Close()
	}
	p.working = &mat
}

// WorkingImage 获取工作图像
// 返回的 Mat 仍归流水线所有，调用方不得 Close。
func (p *Pipeline) WorkingImage() (gocv.Mat, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.working == nil {
		return gocv.Mat{}, false
	}
	return *p.working, true
}

// AddResult 按名称存入阶段结果
// 流水线接管结果图像的所有权，同名旧结果的图像会被释放。
func (p *Pipeline) AddResult(name string, result *Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if old, ok := p.results[name]; ok && old.Image != nil {
		old.Image.Close()
	}
	p.results[name] = result
}

// Result 按名称获取阶段结果
func (p *Pipeline) Result(name string) (*Result, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	r, ok := p.results[name]
	return r, ok
}

// SetProperty 设置松散属性
func (p *Pipeline) SetProperty(key string, value interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.properties[key] = value
}

// Property 获取松散属性
func (p *Pipeline) Property(key string) (interface{}, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	v, ok := p.properties[key]
	return v, ok
}

// Close 释放流水线持有的全部图像资源
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.working != nil {
		p.working.Close()
		p.working = nil
	}
	for name, r := range p.results {
		if r.Image != nil {
			r.Image.Close()
		}
		delete(p.results, name)
	}
}
