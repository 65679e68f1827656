package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Client 调用 Ollama 风格的 /api/generate 接口生成聊天回复。
// 它是消息生命周期之外的外部协作方：由 WebSocket 读循环在发现调用
// 标记后单独请求，再把回复注入 Send 路径。
type Client struct {
	baseURL string
	model   string
	http    *http.Client
}

func NewClient(baseURL, model string) *Client {
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), model: model, http: http.DefaultClient}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateStreamLine struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Reply 把收到的消息文本作为提示词请求模型，返回去除首尾空白的回复。
func (c *Client) Reply(ctx context.Context, prompt string) (string, error) {
	reqBody, _ := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: true,
	})

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ai request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ai returned status %d", resp.StatusCode)
	}

	var result strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var line generateStreamLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			continue
		}
		result.WriteString(line.Response)
		if line.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading stream: %w", err)
	}

	return strings.TrimSpace(result.String()), nil
}
