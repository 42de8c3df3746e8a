// Copyright (c) AgentTeam Authors.
// Licensed under the MIT License.

/*
Package server 管理 HTTP 服务器的生命周期。

Manager 封装 net/http.Server：Start 非阻塞监听，Run 阻塞到 context 取消后
优雅关闭，Addr 返回实际监听地址（":0" 时可取得随机端口）。信号处理由调用方
通过 signal.NotifyContext 完成。
*/
package server
