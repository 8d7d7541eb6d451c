package agent

import (
	"context"
	"fmt"
	"time"

	"task-manager/api/taskmanager"
	"task-manager/pkg/config"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Agent 任务管理器的 gRPC 客户端
type Agent struct {
	config *config.AgentConfig
	logger zerolog.Logger

	conn   *grpc.ClientConn
	client taskmanager.TaskManagerClient
}

// New 创建客户端并建立连接，extra 追加到默认连接选项之后
func New(cfg *config.AgentConfig, logger zerolog.Logger, extra ...grpc.DialOption) (*Agent, error) {
	creds, err := transportCredentials(cfg.Server.TLS)
	if err != nil {
		return nil, err
	}

	// 设置 gRPC 连接选项
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                30 * time.Second,
			Timeout:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.WithDefaultServiceConfig(`{
			"methodConfig": [{
				"name": [{"service": "taskmanager.TaskManager"}],
				"retryPolicy": {
					"MaxAttempts": 5,
					"InitialBackoff": "0.1s",
					"MaxBackoff": "5s",
					"BackoffMultiplier": 2.0,
					"RetryableStatusCodes": ["UNAVAILABLE"]
				}
			}]
		}`),
	}, extra...)

	conn, err := grpc.NewClient(cfg.Server.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to server: %w", err)
	}

	return &Agent{
		config: cfg,
		logger: logger,
		conn:   conn,
		client: taskmanager.NewTaskManagerClient(conn),
	}, nil
}

func transportCredentials(cfg config.ClientTLSConfig) (credentials.TransportCredentials, error) {
	if !cfg.Enabled {
		return insecure.NewCredentials(), nil
	}
	if cfg.CACert == "" {
		return credentials.NewTLS(nil), nil
	}
	creds, err := credentials.NewClientTLSFromFile(cfg.CACert, cfg.ServerName)
	if err != nil {
		return nil, fmt.Errorf("loading TLS credentials: %w", err)
	}
	return creds, nil
}

// Analyze 发送单个任务请求，返回 JSON 响应文档
func (a *Agent) Analyze(ctx context.Context, req map[string]any) ([]byte, error) {
	return a.call(ctx, taskmanager.AnalyzeMethod, req, a.client.Analyze)
}

// Message 发送批量消息信封
func (a *Agent) Message(ctx context.Context, envelope map[string]any) ([]byte, error) {
	return a.call(ctx, taskmanager.MessageMethod, envelope, a.client.Message)
}

type unaryCall func(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)

func (a *Agent) call(ctx context.Context, method string, payload map[string]any, invoke unaryCall) ([]byte, error) {
	in, err := structpb.NewStruct(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.Server.Timeout)
	defer cancel()

	requestID := uuid.New().String()
	ctx = metadata.AppendToOutgoingContext(ctx, "x-request-id", requestID)

	out, err := invoke(ctx, in)
	if err != nil {
		a.logger.Error().Err(err).Str("method", method).Str("request_id", requestID).Msg("Request failed")
		return nil, err
	}

	data, err := protojson.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return data, nil
}

// Close 关闭连接
func (a *Agent) Close() error {
	return a.conn.Close()
}
