package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
)

// PlaybackStatus 代理Pod回放状态
// 字段名大小写混用是代理侧的既有契约，不能改动
type PlaybackStatus struct {
	IsPlaying   bool   `json:"isPlaying"`
	CurrentLoop int    `json:"current_loop"`
	MaxLoops    int    `json:"max_loops"`
	StopReason  string `json:"stopReason"` // "", completed, stopped, failed
}

// 回放停止原因
const (
	StopReasonCompleted = "completed"
	StopReasonStopped   = "stopped"
	StopReasonFailed    = "failed"
)

// Completed 判断回放是否正常完成
func (s *PlaybackStatus) Completed() bool {
	if s.IsPlaying {
		return false
	}
	if s.StopReason == StopReasonCompleted {
		return true
	}
	return s.StopReason == "" && s.MaxLoops > 0 && s.CurrentLoop >= s.MaxLoops
}

// Failed 判断回放是否失败
func (s *PlaybackStatus) Failed() bool {
	return s.StopReason == StopReasonFailed
}

// PlayRequest 回放启动请求
// object_url 是对象存储的预签名下载地址，代理用它拉取rosbag包
type PlayRequest struct {
	ObjectPath        string `json:"object_path"`
	ObjectURL         string `json:"object_url"`
	MaxLoops          int    `json:"max_loops"`
	DelayBetweenLoops int    `json:"delay_between_loops"`
	ExecutionDuration int    `json:"execution_duration"`
}

// AgentClient 代理Pod回放客户端
type AgentClient interface {
	AgentBaseURL(podIP string) string
	Play(ctx context.Context, baseURL string, req *PlayRequest) error
	Stop(ctx context.Context, baseURL string) error
	Status(ctx context.Context, baseURL string) (*PlaybackStatus, error)
}

// HTTPAgentClient AgentClient 的HTTP实现
type HTTPAgentClient struct {
	httpClient *http.Client
	agentPort  int
}

// NewHTTPAgentClient 创建代理客户端
func NewHTTPAgentClient(timeout time.Duration, agentPort int) *HTTPAgentClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPAgentClient{
		httpClient: &http.Client{Timeout: timeout},
		agentPort:  agentPort,
	}
}

// AgentBaseURL 由Pod IP拼出代理基础地址
func (c *HTTPAgentClient) AgentBaseURL(podIP string) string {
	return fmt.Sprintf("http://%s:%d", podIP, c.agentPort)
}

// Play 启动回放，代理返回202表示已受理
func (c *HTTPAgentClient) Play(ctx context.Context, baseURL string, req *PlayRequest) error {
	_, err := c.doRequest(ctx, http.MethodPost, baseURL+"/rosbag/play", req)
	return err
}

// Stop 停止回放，幂等
func (c *HTTPAgentClient) Stop(ctx context.Context, baseURL string) error {
	_, err := c.doRequest(ctx, http.MethodPost, baseURL+"/rosbag/stop", nil)
	return err
}

// Status 查询回放状态
func (c *HTTPAgentClient) Status(ctx context.Context, baseURL string) (*PlaybackStatus, error) {
	body, err := c.doRequest(ctx, http.MethodGet, baseURL+"/rosbag/status", nil)
	if err != nil {
		return nil, err
	}
	var status PlaybackStatus
	if err := sonic.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("解析状态响应失败: %w", err)
	}
	return &status, nil
}

func (c *HTTPAgentClient) doRequest(ctx context.Context, method, url string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := sonic.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("序列化请求体失败: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("代理错误 (%d): %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
