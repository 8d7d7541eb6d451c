package api

import (
	"context"
	"encoding/json"
	"time"

	"task-manager/api/taskmanager"
	"task-manager/internal/analyzer"
	"task-manager/internal/models"
	"task-manager/internal/service"
	"task-manager/pkg/logger"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// requestIDMetadataKey gRPC 元数据中的请求 ID
const requestIDMetadataKey = "x-request-id"

// GRPCService 通过 gRPC 暴露任务分析
type GRPCService struct {
	taskService *service.TaskService
	log         zerolog.Logger
}

var _ taskmanager.TaskManagerServer = (*GRPCService)(nil)

func NewGRPCService(taskService *service.TaskService, logger *logger.Logger) *GRPCService {
	return &GRPCService{
		taskService: taskService,
		log:         logger.GetLogger("grpc"),
	}
}

// Register 注册到 gRPC 服务器
func (s *GRPCService) Register(server *grpc.Server) {
	taskmanager.RegisterTaskManagerServer(server, s)
}

func (s *GRPCService) Analyze(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	resp, code := s.taskService.Analyze(ctx, analyzer.RequestFromMap(req.AsMap()))
	if resp == nil {
		if code == models.CodeSuccess {
			return nil, status.Error(codes.InvalidArgument, "request requires node, module and command")
		}
		return nil, status.Error(codes.Internal, code.Message())
	}
	return toStruct(resp)
}

func (s *GRPCService) Message(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	data, err := protojson.Marshal(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "encoding message: %v", err)
	}
	return toStruct(s.taskService.ProcessMessage(ctx, data))
}

// toStruct 经 JSON 转换，保持与 HTTP 响应相同的字段名
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding response: %v", err)
	}

	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Errorf(codes.Internal, "converting response: %v", err)
	}
	return out, nil
}

// UnaryLoggingInterceptor 记录每次调用，并在响应头中回传请求 ID
func UnaryLoggingInterceptor(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()

		requestID := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if values := md.Get(requestIDMetadataKey); len(values) > 0 {
				requestID = values[0]
			}
		}
		if requestID == "" {
			requestID = uuid.New().String()
		}
		if err := grpc.SetHeader(ctx, metadata.Pairs(requestIDMetadataKey, requestID)); err != nil {
			log.Debug().Err(err).Msg("Failed to set request id header")
		}

		resp, err := handler(ctx, req)

		code := status.Code(err)
		event := log.Info()
		if code == codes.Internal || code == codes.Unknown {
			event = log.Error()
		} else if err != nil {
			event = log.Warn()
		}
		event.
			Str("request_id", requestID).
			Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("latency", time.Since(start)).
			Msg("gRPC request")

		return resp, err
	}
}
