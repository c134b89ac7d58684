package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderConfig 单个大模型服务商的配置
type ProviderConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	Endpoint  string `yaml:"endpoint"`   // API 地址，为空时使用 SDK 默认值
	MaxTokens int    `yaml:"max_tokens"` // 单次回复的最大 token 数
	ProxyURL  string `yaml:"proxy_url"`  // 仅 Gemini 客户端使用
}

// Config 表示应用程序的配置
type Config struct {
	Server struct {
		Addr         string   `yaml:"addr"`
		AllowOrigins []string `yaml:"allow_origins"`
		MaxBodySize  int64    `yaml:"max_body_size"` // MB
	} `yaml:"server"`

	Providers struct {
		Anthropic ProviderConfig `yaml:"anthropic"`
		OpenAI    ProviderConfig `yaml:"openai"`
		Gemini    ProviderConfig `yaml:"gemini"`
		Deepseek  ProviderConfig `yaml:"deepseek"`
	} `yaml:"providers"`

	Classifier struct {
		Provider string `yaml:"provider"` // 负责 /template 分类的服务商
	} `yaml:"classifier"`

	Sandbox struct {
		WorkDir        string   `yaml:"work_dir"`
		InstallCommand []string `yaml:"install_command"`
		DevCommand     []string `yaml:"dev_command"`
	} `yaml:"sandbox"`

	Archive struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"archive"`

	Sessions struct {
		IdleTimeoutMinutes     int `yaml:"idle_timeout_minutes"`
		CleanupIntervalMinutes int `yaml:"cleanup_interval_minutes"`
	} `yaml:"sessions"`

	GitHub struct {
		Token string `yaml:"token"`
	} `yaml:"github"`

	Import struct {
		MaxFileSize         int64    `yaml:"max_file_size"` // KB
		MaxFiles            int      `yaml:"max_files"`
		ExcludedDirPrefixes []string `yaml:"excluded_dir_prefixes"`
		ExcludedExtensions  []string `yaml:"excluded_extensions"`
		TextExtensions      []string `yaml:"text_extensions"`
		TextFilenames       []string `yaml:"text_filenames"`
	} `yaml:"import"`

	Logging struct {
		Level      string `yaml:"level"`       // 日志级别: debug, info, warn, error
		OutputPath string `yaml:"output_path"` // 日志输出路径
	} `yaml:"logging"`

	// 运行时缓存
	excludedExtMap map[string]struct{}
	textExtMap     map[string]struct{}
}

var (
	config *Config
	once   sync.Once
)

// Load 加载配置文件
func Load(configPath string) error {
	var err error
	once.Do(func() {
		var data []byte
		data, err = os.ReadFile(configPath)
		if err != nil {
			return
		}
		config, err = Parse(data)
	})
	return err
}

// Get 返回配置实例
func Get() *Config {
	return config
}

// Parse 解析 YAML 配置并应用环境变量覆盖
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.init()
	return cfg, nil
}

func (c *Config) init() {
	c.excludedExtMap = make(map[string]struct{})
	c.textExtMap = make(map[string]struct{})
	for _, ext := range c.Import.ExcludedExtensions {
		c.excludedExtMap[strings.ToLower(ext)] = struct{}{}
	}
	for _, ext := range c.Import.TextExtensions {
		c.textExtMap[strings.ToLower(ext)] = struct{}{}
	}

	// 尝试从环境变量读取 API 密钥
	envKeys := map[string]*string{
		"ANTHROPIC_API_KEY":  &c.Providers.Anthropic.APIKey,
		"OPENAI_API_KEY":     &c.Providers.OpenAI.APIKey,
		"GEMINI_API_KEY":     &c.Providers.Gemini.APIKey,
		"OPENROUTER_API_KEY": &c.Providers.Deepseek.APIKey,
		"GITHUB_API_KEY":     &c.GitHub.Token,
	}
	for name, target := range envKeys {
		if v := os.Getenv(name); v != "" {
			*target = v
		}
	}
}

// IsExcluded 检查导入的文件是否应该被排除
func (c *Config) IsExcluded(filePath string, fileSize uint64) bool {
	if fileSize > uint64(c.GetImportMaxFileSize()) {
		return true
	}

	normalizedPath := filepath.ToSlash(filePath)
	for _, prefix := range c.Import.ExcludedDirPrefixes {
		if strings.HasPrefix(normalizedPath, prefix) {
			return true
		}
	}

	_, excluded := c.excludedExtMap[strings.ToLower(filepath.Ext(normalizedPath))]
	return excluded
}

// IsLikelyTextFile 检查文件是否可能是文本文件
func (c *Config) IsLikelyTextFile(filePath string) bool {
	if _, ok := c.textExtMap[strings.ToLower(filepath.Ext(filePath))]; ok {
		return true
	}

	// 处理无扩展名的常见文本文件
	baseName := filepath.Base(filePath)
	for _, name := range c.Import.TextFilenames {
		if name == baseName {
			return true
		}
	}
	return false
}

// GetServerAddr 返回监听地址
func (c *Config) GetServerAddr() string {
	if c.Server.Addr == "" {
		return ":3000"
	}
	return c.Server.Addr
}

// GetMaxBodySize 返回请求体大小上限（字节）
func (c *Config) GetMaxBodySize() int64 {
	if c.Server.MaxBodySize <= 0 {
		return 8 * 1024 * 1024
	}
	return c.Server.MaxBodySize * 1024 * 1024
}

// GetAllowOrigins 返回允许跨域访问的来源
func (c *Config) GetAllowOrigins() []string {
	if len(c.Server.AllowOrigins) == 0 {
		return []string{"*"}
	}
	return c.Server.AllowOrigins
}

// GetClassifierProvider 返回负责模板分类的服务商名称
func (c *Config) GetClassifierProvider() string {
	if c.Classifier.Provider == "" {
		return "gemini"
	}
	return c.Classifier.Provider
}

// GetGeminiAPIKey 返回 Gemini API 密钥
func (c *Config) GetGeminiAPIKey() string {
	return c.Providers.Gemini.APIKey
}

// GetGeminiModel 返回 Gemini 模型名称
func (c *Config) GetGeminiModel() string {
	if c.Providers.Gemini.Model == "" {
		return "gemini-2.0-flash-exp"
	}
	return c.Providers.Gemini.Model
}

// GetGeminiApiEndpoint 返回 Gemini API 地址
func (c *Config) GetGeminiApiEndpoint() string {
	if c.Providers.Gemini.Endpoint == "" {
		return "https://generativelanguage.googleapis.com/v1beta/models"
	}
	return strings.TrimRight(c.Providers.Gemini.Endpoint, "/")
}

// GetGeminiProxyURL 返回 Gemini 代理地址
func (c *Config) GetGeminiProxyURL() string {
	return c.Providers.Gemini.ProxyURL
}

// GetSandboxWorkDir 返回沙箱工作目录的根路径
func (c *Config) GetSandboxWorkDir() string {
	if c.Sandbox.WorkDir == "" {
		return filepath.Join(os.TempDir(), "hyperbuild")
	}
	return c.Sandbox.WorkDir
}

// GetInstallCommand 返回依赖安装命令
func (c *Config) GetInstallCommand() []string {
	if len(c.Sandbox.InstallCommand) == 0 {
		return []string{"npm", "install"}
	}
	return c.Sandbox.InstallCommand
}

// GetDevCommand 返回开发服务器启动命令
func (c *Config) GetDevCommand() []string {
	if len(c.Sandbox.DevCommand) == 0 {
		return []string{"npm", "run", "dev"}
	}
	return c.Sandbox.DevCommand
}

// GetArchivePath 返回回复归档数据库路径
func (c *Config) GetArchivePath() string {
	if c.Archive.Path == "" {
		return "./data/responses.db"
	}
	return c.Archive.Path
}

// GetSessionIdleTimeout 返回会话空闲超时时间
func (c *Config) GetSessionIdleTimeout() time.Duration {
	if c.Sessions.IdleTimeoutMinutes <= 0 {
		return 2 * time.Hour
	}
	return time.Duration(c.Sessions.IdleTimeoutMinutes) * time.Minute
}

// GetSessionCleanupInterval 返回会话清理间隔
func (c *Config) GetSessionCleanupInterval() time.Duration {
	if c.Sessions.CleanupIntervalMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Sessions.CleanupIntervalMinutes) * time.Minute
}

// GetImportMaxFileSize 返回导入时单个文件的大小上限（字节）
func (c *Config) GetImportMaxFileSize() int64 {
	if c.Import.MaxFileSize <= 0 {
		return 100 * 1024
	}
	return c.Import.MaxFileSize * 1024
}

// GetImportMaxFiles 返回单次导入的文件数上限
func (c *Config) GetImportMaxFiles() int {
	if c.Import.MaxFiles <= 0 {
		return 200
	}
	return c.Import.MaxFiles
}

// GetGithubAPIKey 返回 GitHub API 密钥
func (c *Config) GetGithubAPIKey() string {
	return c.GitHub.Token
}

// GetLogLevel 返回日志级别
func (c *Config) GetLogLevel() string {
	if c.Logging.Level == "" {
		return "info" // 默认日志级别
	}
	return c.Logging.Level
}

// GetLogOutputPath 返回日志输出路径
func (c *Config) GetLogOutputPath() string {
	if c.Logging.OutputPath == "" {
		return "./logs" // 默认日志目录
	}
	return c.Logging.OutputPath
}
