package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"hyperbuild-web/pkg/config"
	"hyperbuild-web/pkg/logger"

	"go.uber.org/zap"
)

const defaultAPIBase = "https://api.github.com"

var repoURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`github\.com[:/]([^/]+)/([^/]+?)(?:\.git)?/?$`),
	regexp.MustCompile(`github\.com/([^/]+)/([^/]+)`),
}

// Content 表示 GitHub contents API 响应
type Content struct {
	Type        string `json:"type"`
	Path        string `json:"path"`
	Content     string `json:"content"`
	Encoding    string `json:"encoding"`
	DownloadURL string `json:"download_url"`
}

// File 导入的一个文本文件
type File struct {
	Path    string
	Content string
}

// Repo 导入结果
type Repo struct {
	Owner  string
	Name   string
	Branch string
	Files  []File
}

// Client GitHub 客户端
type Client struct {
	config     *config.Config
	apiBase    string
	httpClient *http.Client
}

// NewClient 创建 GitHub 客户端实例
func NewClient(cfg *config.Config) *Client {
	return &Client{
		config:     cfg,
		apiBase:    defaultAPIBase,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

// WithAPIBase 替换 API 地址，用于 GitHub Enterprise
func (c *Client) WithAPIBase(base string) *Client {
	c.apiBase = strings.TrimRight(base, "/")
	return c
}

// ImportRepo 获取仓库中可导入的文本文件，依次尝试 main 与 master 分支
func (c *Client) ImportRepo(ctx context.Context, repoURL, token string) (*Repo, error) {
	owner, name, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}
	if token == "" {
		token = c.config.GetGithubAPIKey()
	}

	logger.Info("开始获取 GitHub 仓库内容", zap.String("owner", owner), zap.String("repo", name))

	var lastError error
	for _, branch := range []string{"main", "master"} {
		files, err := c.getTreeContents(ctx, owner, name, branch, token)
		if err != nil {
			logger.Warn("分支获取失败", zap.String("branch", branch), zap.Error(err))
			lastError = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		logger.Info("成功获取仓库内容", zap.String("branch", branch), zap.Int("files", len(files)))
		return &Repo{Owner: owner, Name: name, Branch: branch, Files: files}, nil
	}

	return nil, fmt.Errorf("无法获取仓库内容: %w", lastError)
}

// getTreeContents 获取分支的文件树，并按优先级抓取文本文件内容
func (c *Client) getTreeContents(ctx context.Context, owner, repo, branch, token string) ([]File, error) {
	apiURL := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1", c.apiBase, owner, repo, branch)
	logger.Debug("获取仓库结构", zap.String("url", apiURL))

	resp, err := c.makeRequest(ctx, apiURL, token)
	if err != nil {
		return nil, fmt.Errorf("请求仓库树失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("GitHub API 请求失败: %s - %s", resp.Status, string(body))
	}

	var treeResp struct {
		Tree []struct {
			Path string `json:"path"`
			Type string `json:"type"`
			Size int64  `json:"size"`
		} `json:"tree"`
		Truncated bool `json:"truncated"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&treeResp); err != nil {
		return nil, fmt.Errorf("解析树响应失败: %w", err)
	}
	if treeResp.Truncated {
		logger.Warn("仓库树被截断，可能不包含所有文件", zap.String("repo", owner+"/"+repo))
	}

	// 项目入口文件优先，保证截断后仍能运行
	var priorityPaths, regularPaths []string
	for _, item := range treeResp.Tree {
		if item.Type != "blob" {
			continue
		}
		if c.config.IsExcluded(item.Path, uint64(item.Size)) || !c.config.IsLikelyTextFile(item.Path) {
			continue
		}
		if importantFiles[filepath.Base(item.Path)] {
			priorityPaths = append(priorityPaths, item.Path)
		} else {
			regularPaths = append(regularPaths, item.Path)
		}
	}

	paths := append(priorityPaths, regularPaths...)
	if limit := c.config.GetImportMaxFiles(); len(paths) > limit {
		logger.Warn("文件过多，已截断", zap.Int("files", len(paths)), zap.Int("limit", limit))
		paths = paths[:limit]
	}
	// 保持仓库原有的目录顺序
	sort.SliceStable(paths, func(i, j int) bool { return paths[i] < paths[j] })

	files := make([]File, 0, len(paths))
	for _, path := range paths {
		content, err := c.getFileContent(ctx, owner, repo, branch, path, token)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("获取文件内容失败", zap.String("path", path), zap.Error(err))
			continue
		}
		files = append(files, File{Path: path, Content: content})
	}
	return files, nil
}

var importantFiles = map[string]bool{
	"package.json":       true,
	"index.html":         true,
	"vite.config.ts":     true,
	"vite.config.js":     true,
	"tsconfig.json":      true,
	"tailwind.config.js": true,
	"README.md":          true,
}

// getFileContent 获取单个文件内容并解码
func (c *Client) getFileContent(ctx context.Context, owner, repo, branch, path, token string) (string, error) {
	apiURL := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s", c.apiBase, owner, repo, path, branch)

	resp, err := c.makeRequest(ctx, apiURL, token)
	if err != nil {
		return "", fmt.Errorf("请求文件失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("获取文件内容失败: %s - %s", resp.Status, string(body))
	}

	var content Content
	if err := json.NewDecoder(resp.Body).Decode(&content); err != nil {
		return "", fmt.Errorf("解析响应失败: %w", err)
	}

	// GitHub 返回的 base64 内容带换行
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(content.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("解码内容失败: %w", err)
	}
	return string(decoded), nil
}

// makeRequest 发送 HTTP 请求
func (c *Client) makeRequest(ctx context.Context, url, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}

	if token != "" {
		req.Header.Set("Authorization", "token "+token)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "HyperBuild-Web/1.0")

	return c.httpClient.Do(req)
}

// ParseRepoURL 解析 GitHub 仓库 URL
func ParseRepoURL(url string) (owner, repo string, err error) {
	for _, re := range repoURLPatterns {
		matches := re.FindStringSubmatch(url)
		if len(matches) == 3 {
			return matches[1], strings.TrimSuffix(matches[2], ".git"), nil
		}
	}

	return "", "", fmt.Errorf("无效的 GitHub 仓库 URL: %s", url)
}
