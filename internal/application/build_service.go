package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"hyperbuild-web/internal/domain/models"
	"hyperbuild-web/internal/domain/services"
	"hyperbuild-web/internal/infrastructure/github"
	"hyperbuild-web/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrSessionNotFound 会话不存在或已过期
var ErrSessionNotFound = errors.New("session not found")

// EnvironmentFactory 为每个会话创建独立的沙箱
type EnvironmentFactory interface {
	Create(sessionID string) (services.Environment, error)
}

// RepoImporter 从远程仓库读取项目文件
type RepoImporter interface {
	ImportRepo(ctx context.Context, repoURL, token string) (*github.Repo, error)
}

// BuildConfig 构建服务的运行参数
type BuildConfig struct {
	InstallCommand  []string
	DevCommand      []string
	IdleTimeout     time.Duration
	CleanupInterval time.Duration
}

// BuildSession 一次构建会话：步骤列表、文件树、对话记录和沙箱
type BuildSession struct {
	ID       string
	Provider string

	// turn 串行化同一会话的对话轮次，大模型调用期间不持有 mu
	turn sync.Mutex

	mu         sync.Mutex
	template   models.TemplateLabel
	steps      []models.Step
	nextID     int
	tree       *services.FileTree
	messages   []models.ChatMessage
	env        services.Environment
	mounter    *services.Mounter
	preview    *Preview
	createdAt  time.Time
	lastActive time.Time
	closed     chan struct{}
}

// SessionSnapshot 会话的只读快照
type SessionSnapshot struct {
	ID         string               `json:"id" msgpack:"id"`
	Provider   string               `json:"provider" msgpack:"provider"`
	Template   models.TemplateLabel `json:"template" msgpack:"template"`
	Steps      []models.Step        `json:"steps" msgpack:"steps"`
	Files      []*models.FileItem   `json:"files" msgpack:"files"`
	FileCount  int                  `json:"fileCount" msgpack:"fileCount"`
	Mounts     int                  `json:"mounts" msgpack:"mounts"`
	Messages   []models.ChatMessage `json:"messages" msgpack:"messages"`
	Preview    PreviewStatus        `json:"preview" msgpack:"preview"`
	CreatedAt  time.Time            `json:"createdAt" msgpack:"createdAt"`
	LastActive time.Time            `json:"lastActive" msgpack:"lastActive"`
}

func newBuildSession(id, provider string, env services.Environment, cfg BuildConfig) *BuildSession {
	now := time.Now()
	s := &BuildSession{
		ID:         id,
		Provider:   provider,
		nextID:     1,
		tree:       services.NewFileTree(),
		env:        env,
		mounter:    services.NewMounter(env),
		preview:    NewPreview(env, cfg.InstallCommand, cfg.DevCommand),
		createdAt:  now,
		lastActive: now,
		closed:     make(chan struct{}),
	}
	go s.mountWhenReady()
	return s
}

// mountWhenReady 沙箱就绪后挂载一次当前文件树，之前的变更都会包含在内
func (s *BuildSession) mountWhenReady() {
	select {
	case <-s.env.Ready():
	case <-s.closed:
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tree.Len() == 0 {
		return
	}
	if err := s.mounter.Sync(context.Background(), s.tree); err != nil {
		logger.Warn("首次挂载失败", zap.String("session_id", s.ID), zap.Error(err))
	}
}

// appendSteps 追加新解析出的步骤，重新编号以保证跨轮次单调递增，并标记为 pending
func (s *BuildSession) appendSteps(parsed []models.Step) {
	for _, step := range parsed {
		step.ID = s.nextID
		step.Status = models.StatusPending
		s.nextID++
		s.steps = append(s.steps, step)
	}
}

// reconcile 把待处理步骤合并进文件树，树有变化时重新挂载
func (s *BuildSession) reconcile(ctx context.Context, builder *services.TreeBuilder) services.BatchResult {
	res := builder.Apply(s.tree, s.steps)
	if !res.Changed {
		return res
	}
	s.tree = res.Tree
	logger.Debug("步骤已合并到文件树",
		zap.String("session_id", s.ID),
		zap.Int("processed", res.Processed),
		zap.Int("written", res.Written),
		zap.Int("rejected", len(res.Rejected)))
	s.remount(ctx)
	return res
}

// remount 沙箱未就绪时跳过，由 mountWhenReady 补上
func (s *BuildSession) remount(ctx context.Context) {
	err := s.mounter.Sync(ctx, s.tree)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrNotReady):
		logger.Debug("沙箱未就绪，暂不挂载", zap.String("session_id", s.ID))
	default:
		logger.Warn("挂载文件树失败", zap.String("session_id", s.ID), zap.Error(err))
	}
}

func (s *BuildSession) touch() {
	s.lastActive = time.Now()
}

func (s *BuildSession) snapshot() *SessionSnapshot {
	return &SessionSnapshot{
		ID:         s.ID,
		Provider:   s.Provider,
		Template:   s.template,
		Steps:      append([]models.Step{}, s.steps...),
		Files:      s.tree.Clone().Roots(),
		FileCount:  len(s.tree.Files()),
		Mounts:     s.mounter.Mounts(),
		Messages:   append([]models.ChatMessage{}, s.messages...),
		Preview:    s.preview.Status(),
		CreatedAt:  s.createdAt,
		LastActive: s.lastActive,
	}
}

func (s *BuildSession) close() {
	close(s.closed)
	s.preview.Stop()
	if c, ok := s.env.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.Warn("关闭沙箱失败", zap.String("session_id", s.ID), zap.Error(err))
		}
	}
}

// BuildService 构建编排服务，管理所有会话
type BuildService struct {
	cfg      BuildConfig
	chat     *ChatService
	parser   *services.ArtifactParser
	builder  *services.TreeBuilder
	envs     EnvironmentFactory
	importer RepoImporter

	mu       sync.RWMutex
	sessions map[string]*BuildSession
	stop     chan struct{}
	stopOnce sync.Once
}

// NewBuildService 创建构建服务并启动过期会话清理任务
func NewBuildService(cfg BuildConfig, chat *ChatService, envs EnvironmentFactory, importer RepoImporter) *BuildService {
	s := &BuildService{
		cfg:      cfg,
		chat:     chat,
		parser:   services.NewArtifactParser(),
		builder:  services.NewTreeBuilder(),
		envs:     envs,
		importer: importer,
		sessions: make(map[string]*BuildSession),
		stop:     make(chan struct{}),
	}

	if cfg.CleanupInterval > 0 && cfg.IdleTimeout > 0 {
		go s.cleanupExpiredSessions()
	}
	return s
}

// cleanupExpiredSessions 定期清理过期会话
func (s *BuildService) cleanupExpiredSessions() {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictIdle(time.Now())
		case <-s.stop:
			return
		}
	}
}

// evictIdle 删除在 now 之前超过空闲时间的会话
func (s *BuildService) evictIdle(now time.Time) int {
	var expired []*BuildSession

	s.mu.Lock()
	for id, session := range s.sessions {
		session.mu.Lock()
		idle := now.Sub(session.lastActive)
		session.mu.Unlock()
		if idle > s.cfg.IdleTimeout {
			delete(s.sessions, id)
			expired = append(expired, session)
		}
	}
	s.mu.Unlock()

	for _, session := range expired {
		logger.Debug("清理过期构建会话", zap.String("session_id", session.ID))
		session.close()
	}
	return len(expired)
}

// Close 停止清理任务并关闭所有会话
func (s *BuildService) Close() {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*BuildSession)
	s.mu.Unlock()

	for _, session := range sessions {
		session.close()
	}
}

func (s *BuildService) session(id string) (*BuildSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return session, nil
}

// Create 新建会话：分类项目原型，用模板回复生成初始步骤，再把用户需求发给大模型
func (s *BuildService) Create(ctx context.Context, prompt, provider string) (*SessionSnapshot, error) {
	if !s.chat.HasProvider(provider) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}

	label, bundle, err := s.chat.ClassifyTemplate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	messages := make([]models.ChatMessage, 0, len(bundle.Prompts)+2)
	for _, content := range append(bundle.Prompts, prompt) {
		messages = append(messages, models.ChatMessage{Role: models.RoleUser, Content: content})
	}

	response, err := s.chat.Chat(ctx, provider, messages)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	env, err := s.envs.Create(id)
	if err != nil {
		return nil, fmt.Errorf("create sandbox: %w", err)
	}
	session := newBuildSession(id, provider, env, s.cfg)

	session.mu.Lock()
	session.template = label
	for _, ui := range bundle.UIPrompts {
		session.appendSteps(s.parser.Parse(ui))
	}
	session.appendSteps(s.parser.Parse(response))
	session.messages = append(messages, models.ChatMessage{Role: models.RoleAssistant, Content: response})
	session.reconcile(ctx, s.builder)
	snap := session.snapshot()
	session.mu.Unlock()

	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()

	logger.Info("创建构建会话",
		zap.String("session_id", id),
		zap.String("provider", provider),
		zap.String("template", string(label)),
		zap.Int("steps", len(snap.Steps)))
	return snap, nil
}

// SendMessage 追加一轮对话，新回复解析出的步骤合并进文件树
func (s *BuildService) SendMessage(ctx context.Context, id, content string) (*SessionSnapshot, error) {
	session, err := s.session(id)
	if err != nil {
		return nil, err
	}

	session.turn.Lock()
	defer session.turn.Unlock()

	userMsg := models.ChatMessage{Role: models.RoleUser, Content: content}
	session.mu.Lock()
	session.touch()
	messages := append(append([]models.ChatMessage{}, session.messages...), userMsg)
	session.mu.Unlock()

	response, err := s.chat.Chat(ctx, session.Provider, messages)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	session.messages = append(session.messages, userMsg, models.ChatMessage{Role: models.RoleAssistant, Content: response})
	session.appendSteps(s.parser.Parse(response))
	session.reconcile(ctx, s.builder)
	session.touch()
	return session.snapshot(), nil
}

// Get 返回会话快照
func (s *BuildService) Get(id string) (*SessionSnapshot, error) {
	session, err := s.session(id)
	if err != nil {
		return nil, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.snapshot(), nil
}

// Tree 返回文件树的文本形式
func (s *BuildService) Tree(id string) (string, error) {
	session, err := s.session(id)
	if err != nil {
		return "", err
	}
	session.mu.Lock()
	defer session.mu.Unlock()

	var buf bytes.Buffer
	session.tree.Print(&buf)
	return buf.String(), nil
}

// MountTree 返回当前文件树的挂载描述
func (s *BuildService) MountTree(id string) (services.MountTree, error) {
	session, err := s.session(id)
	if err != nil {
		return nil, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	return services.Project(session.tree.Roots()), nil
}

// ReadFile 返回文件内容
func (s *BuildService) ReadFile(id, path string) (string, error) {
	session, err := s.session(id)
	if err != nil {
		return "", err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.tree.ReadFile(path)
}

// EditFile 编辑器写入，与步骤合并走同一个写入函数，后写者生效
func (s *BuildService) EditFile(ctx context.Context, id, path, content string) error {
	session, err := s.session(id)
	if err != nil {
		return err
	}
	session.mu.Lock()
	defer session.mu.Unlock()

	if err := session.tree.WriteFile(path, content); err != nil {
		return err
	}
	session.touch()
	session.remount(ctx)
	return nil
}

// Import 把远程仓库的文件作为一批步骤导入会话
func (s *BuildService) Import(ctx context.Context, id, repoURL, token string) (*SessionSnapshot, error) {
	session, err := s.session(id)
	if err != nil {
		return nil, err
	}
	if s.importer == nil {
		return nil, errors.New("repository import is not configured")
	}

	repo, err := s.importer.ImportRepo(ctx, repoURL, token)
	if err != nil {
		return nil, err
	}

	steps := make([]models.Step, 0, len(repo.Files)+1)
	steps = append(steps, models.Step{
		Type:  models.StepText,
		Title: fmt.Sprintf("Import %s/%s", repo.Owner, repo.Name),
	})
	for _, f := range repo.Files {
		steps = append(steps, models.Step{
			Type:  models.StepCreateFile,
			Title: "Create file " + f.Path,
			Path:  f.Path,
			Code:  f.Content,
		})
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	session.appendSteps(steps)
	res := session.reconcile(ctx, s.builder)
	session.touch()

	logger.Info("导入仓库完成",
		zap.String("session_id", id),
		zap.String("repo", repo.Owner+"/"+repo.Name),
		zap.Int("written", res.Written),
		zap.Int("files", len(session.tree.Files())))
	return session.snapshot(), nil
}

// StartPreview 启动或重新加载预览，返回是否真的发起了启动
func (s *BuildService) StartPreview(id string, reload bool) (bool, PreviewStatus, error) {
	session, err := s.session(id)
	if err != nil {
		return false, PreviewStatus{}, err
	}
	session.mu.Lock()
	session.touch()
	session.mu.Unlock()

	started := session.preview.Start(reload)
	return started, session.preview.Status(), nil
}

// Delete 结束会话并释放沙箱
func (s *BuildService) Delete(id string) error {
	s.mu.Lock()
	session, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	session.close()
	logger.Info("删除构建会话", zap.String("session_id", id))
	return nil
}

// Len 返回当前会话数
func (s *BuildService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
