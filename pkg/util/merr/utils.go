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

package merr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Code 返回给定错误对应的错误码。
func Code(err error) int32 {
	if err == nil {
		return 0
	}

	cause := errors.Cause(err)
	switch specificErr := cause.(type) {
	case hermesError:
		return specificErr.code()

	default:
		if errors.Is(specificErr, context.Canceled) {
			return CanceledCode
		} else if errors.Is(specificErr, context.DeadlineExceeded) {
			return TimeoutCode
		} else {
			return errUnexpected.code()
		}
	}
}

// IsRetryableErr 返回给定错误是否可以安全重试。
func IsRetryableErr(err error) bool {
	if cause, ok := errors.Cause(err).(hermesError); ok {
		return cause.retriable
	}

	return false
}

// IsCanceledOrTimeout 返回给定错误是否由上下文取消或超时引起。
func IsCanceledOrTimeout(err error) bool {
	return errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
}

// wrapFields 将若干 name=value 字段拼接进错误消息。
func wrapFields(err error, fields ...string) error {
	if len(fields) == 0 {
		return err
	}
	return errors.Wrapf(err, "%s", strings.Join(fields, ", "))
}

func field(name string, value any) string {
	return fmt.Sprintf("%s=%v", name, value)
}

// WrapErrSessionNotFound 包装“会话不存在”错误，附带对端标识信息。
func WrapErrSessionNotFound(peerID uint32, msg ...string) error {
	err := wrapFields(ErrSessionNotFound, field("peer_identifier", peerID))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// WrapErrSessionStopped 包装“会话已停止”错误，附带接口编号信息。
func WrapErrSessionStopped(ifIndex int, msg ...string) error {
	err := wrapFields(ErrSessionStopped, field("peering_interface", ifIndex))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// WrapErrParameterInvalid 包装参数校验错误，附带参数名与实际值。
func WrapErrParameterInvalid(name string, value any, msg ...string) error {
	err := wrapFields(ErrParameterInvalid, field(name, value))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// WrapErrSchedulerDelayInvalid 包装非法定时器延迟错误。
func WrapErrSchedulerDelayInvalid(delay time.Duration, msg ...string) error {
	err := wrapFields(ErrSchedulerDelayInvalid, field("delay", delay))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// WrapErrSchedulerRewind 包装时钟回拨错误，附带当前时间与目标时间。
func WrapErrSchedulerRewind(now, target time.Duration, msg ...string) error {
	err := wrapFields(ErrSchedulerRewind, field("now", now), field("target", target))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// WrapErrQueueFull 包装队列已满错误，附带队列名与容量。
func WrapErrQueueFull(name string, capacity int, msg ...string) error {
	err := wrapFields(ErrQueueFull, field("queue", name), field("capacity", capacity))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// WrapErrRouteNotFound 包装路由缺失错误，附带接口编号。
func WrapErrRouteNotFound(ifIndex int, msg ...string) error {
	err := wrapFields(ErrRouteNotFound, field("peering_interface", ifIndex))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}
