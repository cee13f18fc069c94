// Package tika 提供了一个与 Apache Tika 服务器交互的客户端。
package tika

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"doc-whisper-go/internal/config"
)

// Client 是 Tika 服务器的客户端。
type Client struct {
	serverURL  string
	httpClient *http.Client
}

// NewClient 创建一个新的 Tika 客户端实例。
func NewClient(cfg config.TikaConfig) *Client {
	return &Client{serverURL: strings.TrimRight(cfg.ServerURL, "/"), httpClient: &http.Client{}}
}

// ExtractText 自动根据文件后缀推断 MIME 类型，并调用 Tika 提取纯文本。
func (c *Client) ExtractText(ctx context.Context, fileReader io.Reader, fileName string) (string, error) {
	resp, err := c.put(ctx, "/tika", "text/plain", fileReader, fileName)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("读取 Tika 响应失败: %w", err)
	}
	return string(body), nil
}

// PageCount 调用 /meta 读取 xmpTPg:NPages；无该字段时返回 0。
func (c *Client) PageCount(ctx context.Context, fileReader io.Reader, fileName string) (int, error) {
	resp, err := c.put(ctx, "/meta", "application/json", fileReader, fileName)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var meta map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return 0, fmt.Errorf("解析 Tika 元数据失败: %w", err)
	}
	return parsePageCount(meta["xmpTPg:NPages"]), nil
}

func (c *Client) put(ctx context.Context, path, accept string, body io.Reader, fileName string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.serverURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("Content-Type", detectMimeType(fileName))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("调用 Tika 失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Tika 返回错误 [%d]: %s", resp.StatusCode, string(b))
	}
	return resp, nil
}

// parsePageCount 兼容 Tika 以字符串或字符串数组返回的元数据值。
func parsePageCount(v any) int {
	switch val := v.(type) {
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(val))
		return n
	case []any:
		if len(val) > 0 {
			return parsePageCount(val[0])
		}
	case float64:
		return int(val)
	}
	return 0
}

// detectMimeType 根据文件扩展名判断 Content-Type
func detectMimeType(fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == "" {
		return "application/octet-stream"
	}
	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}
