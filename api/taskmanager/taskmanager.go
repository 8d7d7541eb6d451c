// Package taskmanager 定义任务管理器的 gRPC 服务。
// 请求与响应均为 google.protobuf.Struct，字段与 HTTP 接口的 JSON 文档一致。
package taskmanager

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "taskmanager.TaskManager"

	AnalyzeMethod = "/taskmanager.TaskManager/Analyze"
	MessageMethod = "/taskmanager.TaskManager/Message"
)

// TaskManagerServer 服务端接口
type TaskManagerServer interface {
	// Analyze 处理单个任务请求
	Analyze(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	// Message 处理批量消息信封
	Message(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// RegisterTaskManagerServer 注册服务实现
func RegisterTaskManagerServer(s grpc.ServiceRegistrar, srv TaskManagerServer) {
	s.RegisterService(&ServiceDesc, srv)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TaskManagerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Analyze",
			Handler:    unaryHandler(AnalyzeMethod, TaskManagerServer.Analyze),
		},
		{
			MethodName: "Message",
			Handler:    unaryHandler(MessageMethod, TaskManagerServer.Message),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "taskmanager.proto",
}

type unaryMethod func(TaskManagerServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TaskManagerServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(TaskManagerServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// TaskManagerClient 客户端接口
type TaskManagerClient interface {
	Analyze(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Message(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type taskManagerClient struct {
	cc grpc.ClientConnInterface
}

func NewTaskManagerClient(cc grpc.ClientConnInterface) TaskManagerClient {
	return &taskManagerClient{cc: cc}
}

func (c *taskManagerClient) Analyze(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, AnalyzeMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *taskManagerClient) Message(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MessageMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
