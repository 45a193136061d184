// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package conc

import (
	ants "github.com/panjf2000/ants/v2"
)

// Pool 封装 ants 协程池，为框架内部提供统一的任务提交入口。
//
// 约定：
//   - 任务为无返回值的闭包，结果通过闭包捕获的通道或回调传递；
//   - Release 后不允许再提交任务。
type Pool struct {
	inner *ants.Pool
	opt   *poolOption
}

// NewPool 创建一个容量为 cap 的协程池。
// cap 小于等于 0 时表示不限制并发数。
func NewPool(cap int, opts ...PoolOption) (*Pool, error) {
	opt := defaultPoolOption()
	for _, o := range opts {
		o(opt)
	}

	pool, err := ants.NewPool(cap, opt.antsOptions()...)
	if err != nil {
		return nil, err
	}

	return &Pool{
		inner: pool,
		opt:   opt,
	}, nil
}

// Submit 向协程池提交一个任务。
// 当池已满且处于非阻塞模式时，返回 ants.ErrPoolOverload。
func (pool *Pool) Submit(task func()) error {
	return pool.inner.Submit(task)
}

// Running 返回当前正在执行任务的 worker 数量。
func (pool *Pool) Running() int {
	return pool.inner.Running()
}

// Free 返回当前空闲的 worker 数量。
func (pool *Pool) Free() int {
	return pool.inner.Free()
}

// Release 关闭协程池并回收所有 worker。
func (pool *Pool) Release() {
	pool.inner.Release()
}
