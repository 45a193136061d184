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

package metrics

import (
	// #nosec
	_ "net/http/pprof"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// hermesNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	hermesNamespace = "hermes"

	sessionMetricSubsystem = "session"
	planeMetricSubsystem   = "control_plane"

	// 以下为当前使用的通用标签名。
	interfaceLabelName = "peering_interface"
	routerLabelName    = "router_name"
)

var (
	KeepalivesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: hermesNamespace,
			Subsystem: sessionMetricSubsystem,
			Name:      "keepalives_sent_total",
			Help:      "每个对等接口上已发送的 keepalive 消息总数",
		}, []string{interfaceLabelName})

	KeepaliveResets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: hermesNamespace,
			Subsystem: sessionMetricSubsystem,
			Name:      "keepalive_resets_total",
			Help:      "每个对等接口上 Keepalive 定时器被重置的总数（含内部与外部触发）",
		}, []string{interfaceLabelName})

	HoldDownResets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: hermesNamespace,
			Subsystem: sessionMetricSubsystem,
			Name:      "holddown_resets_total",
			Help:      "每个对等接口上 HoldDown 定时器被重置的总数",
		}, []string{interfaceLabelName})

	SessionInvalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: hermesNamespace,
			Subsystem: sessionMetricSubsystem,
			Name:      "invalidations_total",
			Help:      "每个对等接口上会话因 HoldDown 超时而失效的总数",
		}, []string{interfaceLabelName})

	ValidSessions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: hermesNamespace,
			Subsystem: planeMetricSubsystem,
			Name:      "valid_sessions",
			Help:      "当前处于有效状态的会话数量",
		}, []string{routerLabelName})

	InboundQueueLength = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: hermesNamespace,
			Subsystem: planeMetricSubsystem,
			Name:      "inbound_queue_length",
			Help:      "每个 tick 开始时接收队列中待处理消息的数量",
		}, []string{routerLabelName})

	RouteWithdrawals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: hermesNamespace,
			Subsystem: planeMetricSubsystem,
			Name:      "route_withdrawals_total",
			Help:      "因会话失效而触发的路由撤销操作总数",
		}, []string{routerLabelName, interfaceLabelName})

	metricRegisterer prometheus.Registerer
)

// GetRegisterer 返回全局 Prometheus Registerer。
// 如果尚未通过 Register 显式设置，则返回 prometheus.DefaultRegisterer。
func GetRegisterer() prometheus.Registerer {
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// Register 注册当前定义的所有指标。
// 通常应在 init 函数中调用。
func Register(r prometheus.Registerer) {
	r.MustRegister(KeepalivesSent)
	r.MustRegister(KeepaliveResets)
	r.MustRegister(HoldDownResets)
	r.MustRegister(SessionInvalidations)
	r.MustRegister(ValidSessions)
	r.MustRegister(InboundQueueLength)
	r.MustRegister(RouteWithdrawals)
	metricRegisterer = r
}
