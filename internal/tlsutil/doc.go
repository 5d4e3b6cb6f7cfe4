// Package tlsutil 提供安全加固的 HTTP 客户端构造（TLS 1.2+，仅 AEAD 密码套件），
// 供 tripo 客户端与 Web 前端访问远端服务时使用。
package tlsutil
