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

// Package hardware 提供运行环境的硬件信息查询。
package hardware

import (
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/lk2023060901/bgp-garden-go/pkg/log"
)

var (
	cpuNumOnce sync.Once
	cpuNum     int
)

// GetCPUNum 返回逻辑 CPU 数量。
// 查询失败时退回 runtime.NumCPU。
func GetCPUNum() int {
	cpuNumOnce.Do(func() {
		n, err := cpu.Counts(true)
		if err != nil || n <= 0 {
			n = runtime.NumCPU()
		}
		cpuNum = n
	})
	return cpuNum
}

// GetMemoryCount 返回系统物理内存总量，单位为字节。
func GetMemoryCount() uint64 {
	stats, err := mem.VirtualMemory()
	if err != nil {
		return 0
	}
	return stats.Total
}

// GetUsedMemoryCount 返回系统已使用的物理内存量，单位为字节。
func GetUsedMemoryCount() uint64 {
	stats, err := mem.VirtualMemory()
	if err != nil {
		return 0
	}
	return stats.Used
}

// LogSystemInfo 在进程启动时输出一次运行环境摘要。
func LogSystemInfo() {
	fields := []zap.Field{
		zap.Int("cpu_num", GetCPUNum()),
		zap.Int("gomaxprocs", runtime.GOMAXPROCS(0)),
		zap.Uint64("memory_total", GetMemoryCount()),
		zap.String("go_version", runtime.Version()),
	}
	if info, err := host.Info(); err == nil {
		fields = append(fields,
			zap.String("os", info.OS),
			zap.String("platform", info.Platform),
			zap.String("kernel_version", info.KernelVersion),
		)
	}
	log.Info("运行环境信息", fields...)
}
