package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/agentteam/agent/team"
	"github.com/BaSui01/agentteam/types"
)

// errConversationFailed 会话跑完但没有成功，进程以非零码退出
var errConversationFailed = errors.New("conversation did not succeed")

func runChat(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	teamName := fs.String("team", "", "Team to run")
	goal := fs.String("goal", "", "Conversation goal")
	convID := fs.String("conv", "", "Conversation id")
	retryConv := fs.Bool("retry", false, "Retry the failed tasks of --conv")
	verbose := fs.Bool("v", false, "Log at debug level")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *retryConv && *convID == "" {
		return errors.New("--retry needs --conv")
	}
	if !*retryConv && (*teamName == "" || strings.TrimSpace(*goal) == "") {
		return errors.New("--team and --goal are required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	// 终端里只看消息，日志默认只输出警告
	logCfg := cfg.Log
	logCfg.Format = "console"
	logCfg.OutputPaths = []string{"stderr"}
	if *verbose {
		logCfg.Level = "debug"
	} else {
		logCfg.Level = "warn"
	}
	logger := initLogger(logCfg)
	defer func() { _ = logger.Sync() }()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(context.Background())
	a.start()

	id := *convID
	if id == "" {
		id = uuid.NewString()
	}
	return chatOnce(ctx, a.service, out, team.ChatRequest{ConvID: id, Team: *teamName, Goal: *goal}, *retryConv)
}

// chatOnce 运行一次会话并把过程消息实时打印到 out
func chatOnce(ctx context.Context, svc *team.Service, out io.Writer, req team.ChatRequest, retry bool) error {
	msgs, cancel := svc.Subscribe(req.ConvID)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for m := range msgs {
			printMessage(out, m)
		}
	}()

	var (
		res *team.ChatResult
		err error
	)
	if retry {
		res, err = svc.RetryChat(ctx, req.ConvID)
	} else {
		res, err = svc.Chat(ctx, req)
	}
	cancel()
	wg.Wait()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\nconversation %s (%s, %s) finished in %s\n", res.ConvID, res.Team, res.Mode, res.Duration.Round(time.Millisecond))
	for _, p := range res.Plans {
		fmt.Fprintf(out, "  [%s] %s. %s (%s)\n", p.State, p.SubTaskID, p.SubTaskTitle, p.SubTaskAgent)
	}
	fmt.Fprintf(out, "\n%s\n", res.Content)
	if !res.Success {
		return errConversationFailed
	}
	return nil
}

func printMessage(out io.Writer, m *types.AgentMessage) {
	content := m.Content
	if m.ActionReport != nil && m.ActionReport.Content != "" {
		content = m.ActionReport.Content
	}
	model := ""
	if m.ModelName != "" {
		model = " (" + m.ModelName + ")"
	}
	fmt.Fprintf(out, "--- #%d %s -> %s%s\n%s\n", m.Rounds, m.Sender, m.Receiver, model, strings.TrimSpace(content))
}
