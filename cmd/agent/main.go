package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"task-manager/pkg/agent"
	"task-manager/pkg/config"
	"task-manager/pkg/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 命令行参数
	configPath := flag.String("config", "configs/agent.yaml", "配置文件路径")
	version := flag.Bool("version", false, "显示版本信息")
	node := flag.String("node", "", "请求中的 node，默认取配置")
	module := flag.String("module", "upgrade_module", "模块名")
	command := flag.String("command", "", "命令名")
	agentID := flag.Int("agent", -1, "agent ID")
	taskID := flag.Int("task", -1, "task ID")
	status := flag.String("status", "", "新状态")
	errorMsg := flag.String("error-msg", "", "失败原因")
	message := flag.Bool("message", false, "以消息信封批量发送")
	agents := flag.String("agents", "", "逗号分隔的 agent ID 列表，用于 -message")
	tasks := flag.String("tasks", "", "逗号分隔的 task ID 列表，用于 -message")
	flag.Parse()

	// 显示版本信息
	if *version {
		fmt.Printf("task-agent version %s (built at %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// 获取工作区根目录
	workspaceRoot, err := os.Getwd()
	if err != nil {
		fatalf("Error getting current directory: %v", err)
	}

	// 加载配置
	cfg, err := config.LoadAgentConfig(*configPath, workspaceRoot)
	if err != nil {
		fatalf("Error loading config: %v", err)
	}
	if *node != "" {
		cfg.Node = *node
	}
	if *command == "" {
		fatalf("-command is required")
	}

	// 日志写到 stderr，stdout 只输出响应
	lg := logger.NewLogger(logger.Options{
		Debug:    cfg.Log.Debug,
		File:     cfg.Log.File,
		Rotation: cfg.Log.Rotation,
		Console:  os.Stderr,
	})
	defer lg.Close()
	log := lg.GetLogger("agent")

	client, err := agent.New(cfg, log)
	if err != nil {
		fatalf("Error creating agent: %v", err)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var resp []byte
	if *message {
		params := map[string]any{}
		if err := setIDList(params, "agents", *agents); err != nil {
			fatalf("Invalid -agents: %v", err)
		}
		if err := setIDList(params, "tasks", *tasks); err != nil {
			fatalf("Invalid -tasks: %v", err)
		}
		setString(params, "status", *status)
		setString(params, "error_msg", *errorMsg)

		resp, err = client.Message(ctx, map[string]any{
			"origin":     map[string]any{"name": cfg.Node, "module": *module},
			"command":    *command,
			"parameters": params,
		})
	} else {
		req := map[string]any{"module": *module, "command": *command}
		setString(req, "node", cfg.Node)
		setInt(req, "agent", *agentID)
		setInt(req, "task_id", *taskID)
		setString(req, "status", *status)
		setString(req, "error_msg", *errorMsg)

		resp, err = client.Analyze(ctx, req)
	}
	if err != nil {
		fatalf("Request failed: %v", err)
	}

	var out bytes.Buffer
	if err := json.Indent(&out, resp, "", "  "); err != nil {
		out.Reset()
		out.Write(resp)
	}
	fmt.Println(out.String())
}

func setString(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}

func setInt(m map[string]any, key string, value int) {
	if value >= 0 {
		m[key] = value
	}
}

func setIDList(m map[string]any, key, list string) error {
	if list == "" {
		return nil
	}
	var ids []any
	for _, field := range strings.Split(list, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	m[key] = ids
	return nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
