// Package mcp 将已注册函数以模型上下文协议（Model Context Protocol）
// 工具的形式暴露给 LLM 客户端。每个函数对应一个同名工具，
// 工具入参模式由函数契约推导，调用经由统一的调用管线执行。
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/oriys/conjure/internal/catalog"
	"github.com/oriys/conjure/internal/domain"
)

// Invoker 是 MCP 工具调用所需的最小调用接口。
type Invoker interface {
	Invoke(ctx context.Context, name, token string, payload json.RawMessage) (*domain.InvokeResult, error)
}

// Server 包装 MCP 协议服务器，维护函数与工具的一一映射。
type Server struct {
	mcpServer *server.MCPServer
	sse       *server.SSEServer
	store     catalog.Store
	invoker   Invoker
	logger    *logrus.Logger
}

// New 创建 MCP 服务器。工具列表初始为空，需调用 RegisterAll 加载。
func New(store catalog.Store, inv Invoker, logger *logrus.Logger) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer("conjure", "1.0.0",
			server.WithToolCapabilities(true),
		),
		store:   store,
		invoker: inv,
		logger:  logger,
	}
	s.sse = server.NewSSEServer(s.mcpServer)
	return s
}

// RegisterAll 将目录中的全部函数注册为工具。
func (s *Server) RegisterAll(ctx context.Context) error {
	fns, err := s.store.ListFunctions(ctx)
	if err != nil {
		return err
	}
	for _, fn := range fns {
		s.registerTool(fn)
	}
	s.logger.WithField("count", len(fns)).Info("Registered MCP tools")
	return nil
}

// Refresh 使单个函数的工具与目录保持同步。
// 函数已删除时仅移除工具。
func (s *Server) Refresh(ctx context.Context, name string) {
	s.mcpServer.DeleteTools(name)

	fn, err := s.store.GetFunctionByName(ctx, name)
	if err != nil {
		return
	}
	s.registerTool(fn)
}

// registerTool 由函数记录构建工具并注册调用处理器。
func (s *Server) registerTool(fn *domain.FunctionRecord) {
	name := fn.Name
	s.mcpServer.AddTool(buildTool(fn), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return s.callTool(ctx, name, req)
	})
}

// buildTool 将函数契约翻译成 MCP 工具声明。
func buildTool(fn *domain.FunctionRecord) mcp.Tool {
	desc := fn.Description
	if desc == "" {
		desc = fmt.Sprintf("Invoke the %s function", fn.Name)
	}

	opts := []mcp.ToolOption{mcp.WithDescription(desc)}
	for _, in := range fn.Contract.Inputs {
		var propOpts []mcp.PropertyOption
		if in.IsRequired() {
			propOpts = append(propOpts, mcp.Required())
		}
		if in.Description != "" {
			propOpts = append(propOpts, mcp.Description(in.Description))
		}

		switch in.Type {
		case domain.TypeNumber:
			opts = append(opts, mcp.WithNumber(in.Name, propOpts...))
		case domain.TypeBoolean:
			opts = append(opts, mcp.WithBoolean(in.Name, propOpts...))
		case domain.TypeObject:
			opts = append(opts, mcp.WithObject(in.Name, propOpts...))
		case domain.TypeArray:
			opts = append(opts, mcp.WithArray(in.Name, propOpts...))
		default:
			opts = append(opts, mcp.WithString(in.Name, propOpts...))
		}
	}

	return mcp.NewTool(fn.Name, opts...)
}

// callTool 把工具调用转成一次标准的函数调用。
// MCP 属于进程内受信表面，调用令牌从目录读取。
func (s *Server) callTool(ctx context.Context, name string, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fn, err := s.store.GetFunctionByName(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("function %s not found", name)), nil
	}

	payload, err := json.Marshal(req.GetArguments())
	if err != nil {
		return mcp.NewToolResultError("invalid tool arguments"), nil
	}

	result, err := s.invoker.Invoke(ctx, name, fn.Token, payload)
	if err != nil {
		s.logger.WithError(err).WithField("function_name", name).Warn("MCP tool invocation failed")
		return mcp.NewToolResultError(err.Error()), nil
	}

	out, err := json.Marshal(result.Output)
	if err != nil {
		return mcp.NewToolResultError("failed to encode function output"), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// Start 在指定地址启动 SSE 传输，阻塞直到服务器关闭。
func (s *Server) Start(addr string) error {
	s.logger.WithField("addr", addr).Info("MCP server listening")
	return s.sse.Start(addr)
}

// Shutdown 优雅关闭 SSE 服务器。
func (s *Server) Shutdown(ctx context.Context) error {
	return s.sse.Shutdown(ctx)
}
