package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
)

// PodPhase Pod运行阶段
type PodPhase string

const (
	PodPending   PodPhase = "Pending"
	PodRunning   PodPhase = "Running"
	PodSucceeded PodPhase = "Succeeded"
	PodFailed    PodPhase = "Failed"
	PodUnknown   PodPhase = "Unknown"
)

// Pod标签键，由控制面写到Pod上，用于按执行单元筛选
const (
	LabelOwnerKind = "owner-kind" // step / group
	LabelOwnerID   = "owner-id"
)

// PodInfo 控制面返回的Pod信息
type PodInfo struct {
	Name      string            `json:"name"`
	Namespace string            `json:"namespace"`
	IP        string            `json:"ip"`
	Phase     PodPhase          `json:"phase"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// PodSpec 创建Pod的请求
type PodSpec struct {
	Name      string            `json:"name"`
	Namespace string            `json:"namespace"`
	Image     string            `json:"image,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
}

// PodFilter 按执行单元筛选Pod，零值表示不过滤
type PodFilter struct {
	OwnerKind string
	OwnerID   uint
}

// PodClient Pod控制面客户端
type PodClient interface {
	EnsureNamespace(ctx context.Context, name string) error
	DeleteNamespace(ctx context.Context, name string) error
	CreatePod(ctx context.Context, spec *PodSpec) error
	DeletePod(ctx context.Context, namespace, name string) error
	GetPod(ctx context.Context, namespace, name string) (*PodInfo, error)
	ListPods(ctx context.Context, namespace string, filter PodFilter) ([]PodInfo, error)
}

// HTTPPodClient PodClient 的HTTP实现
type HTTPPodClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewHTTPPodClient 创建Pod控制面客户端
func NewHTTPPodClient(baseURL string, timeout time.Duration) *HTTPPodClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPPodClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// EnsureNamespace 创建命名空间，已存在视为成功
func (c *HTTPPodClient) EnsureNamespace(ctx context.Context, name string) error {
	_, err := c.doRequest(ctx, http.MethodPut, "/v1/namespaces/"+name, nil, nil)
	return err
}

// DeleteNamespace 删除命名空间，不存在视为成功
func (c *HTTPPodClient) DeleteNamespace(ctx context.Context, name string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, "/v1/namespaces/"+name, nil, []int{http.StatusNotFound})
	return err
}

// CreatePod 创建Pod
func (c *HTTPPodClient) CreatePod(ctx context.Context, spec *PodSpec) error {
	path := fmt.Sprintf("/v1/namespaces/%s/pods", spec.Namespace)
	_, err := c.doRequest(ctx, http.MethodPost, path, spec, nil)
	return err
}

// DeletePod 删除Pod，不存在视为成功
func (c *HTTPPodClient) DeletePod(ctx context.Context, namespace, name string) error {
	path := fmt.Sprintf("/v1/namespaces/%s/pods/%s", namespace, name)
	_, err := c.doRequest(ctx, http.MethodDelete, path, nil, []int{http.StatusNotFound})
	return err
}

// GetPod 查询单个Pod
func (c *HTTPPodClient) GetPod(ctx context.Context, namespace, name string) (*PodInfo, error) {
	path := fmt.Sprintf("/v1/namespaces/%s/pods/%s", namespace, name)
	body, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	var info PodInfo
	if err := sonic.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("解析Pod信息失败: %w", err)
	}
	return &info, nil
}

// ListPods 按筛选条件列出命名空间内的Pod
func (c *HTTPPodClient) ListPods(ctx context.Context, namespace string, filter PodFilter) ([]PodInfo, error) {
	path := fmt.Sprintf("/v1/namespaces/%s/pods", namespace)
	if filter.OwnerKind != "" {
		q := url.Values{}
		q.Set("labelSelector", fmt.Sprintf("%s=%s,%s=%s",
			LabelOwnerKind, filter.OwnerKind,
			LabelOwnerID, strconv.FormatUint(uint64(filter.OwnerID), 10)))
		path += "?" + q.Encode()
	}
	body, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	var result struct {
		Items []PodInfo `json:"items"`
	}
	if err := sonic.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("解析Pod列表失败: %w", err)
	}
	return result.Items, nil
}

func (c *HTTPPodClient) doRequest(ctx context.Context, method, path string, body interface{}, tolerated []int) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := sonic.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("序列化请求体失败: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
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
		for _, code := range tolerated {
			if resp.StatusCode == code {
				return respBody, nil
			}
		}
		return nil, fmt.Errorf("控制面错误 (%d): %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
