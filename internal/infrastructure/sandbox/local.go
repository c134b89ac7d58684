package sandbox

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"syscall"
	"time"

	"hyperbuild-web/internal/domain/services"
	"hyperbuild-web/pkg/logger"

	"go.uber.org/zap"
)

var (
	ansiPattern   = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)
	serverPattern = regexp.MustCompile(`https?://(?:localhost|127\.0\.0\.1|0\.0\.0\.0|\[::1\]):(\d+)[^\s]*`)
)

// ErrClosed 表示沙箱已被关闭
var ErrClosed = errors.New("sandbox closed")

// Local 把项目挂载到本地目录并在其中执行命令的沙箱
type Local struct {
	dir   string
	ready chan struct{}

	mu        sync.Mutex
	listeners []func(port int, url string)
	procs     map[*localProcess]struct{}
	closed    bool
}

// NewLocal 在 dir 下创建沙箱，目录创建完成即视为就绪
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create sandbox dir: %w", err)
	}
	l := &Local{
		dir:   dir,
		ready: make(chan struct{}),
		procs: make(map[*localProcess]struct{}),
	}
	close(l.ready)
	return l, nil
}

// Dir 返回沙箱根目录
func (l *Local) Dir() string {
	return l.dir
}

// Ready 返回就绪信号
func (l *Local) Ready() <-chan struct{} {
	return l.ready
}

// Mount 把整棵挂载树写入磁盘。已有但不在树中的文件（例如 node_modules）保持不变。
func (l *Local) Mount(ctx context.Context, tree services.MountTree) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return writeTree(ctx, l.dir, tree)
}

func writeTree(ctx context.Context, dir string, tree services.MountTree) error {
	for name, entry := range tree {
		if err := ctx.Err(); err != nil {
			return err
		}
		if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
			return fmt.Errorf("%w: bad entry name %q", services.ErrInvalidPath, name)
		}

		target := filepath.Join(dir, name)
		switch {
		case entry.Directory != nil:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			if err := writeTree(ctx, target, *entry.Directory); err != nil {
				return err
			}
		case entry.File != nil:
			if err := writeIfChanged(target, entry.File.Contents); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeIfChanged 内容未变时不写文件，避免开发服务器无谓地热更新
func writeIfChanged(path, contents string) error {
	if old, err := os.ReadFile(path); err == nil && string(old) == contents {
		return nil
	}
	return os.WriteFile(path, []byte(contents), 0644)
}

// OnServerReady 注册服务就绪回调
func (l *Local) OnServerReady(fn func(port int, url string)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

func (l *Local) emitServerReady(port int, url string) {
	l.mu.Lock()
	listeners := append([]func(int, string){}, l.listeners...)
	l.mu.Unlock()

	logger.Info("检测到开发服务器就绪", zap.Int("port", port), zap.String("url", url))
	for _, fn := range listeners {
		fn(port, url)
	}
}

// Spawn 在沙箱目录中启动命令，标准输出与标准错误合并。
// 命令运行在独立的进程组中，结束时连同它拉起的子进程一起终止。
func (l *Local) Spawn(ctx context.Context, command string, args ...string) (services.Process, error) {
	cmd := exec.Command(command, args...)
	cmd.Dir = l.dir
	cmd.Env = append(os.Environ(), "BROWSER=none", "FORCE_COLOR=0", "CI=true")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// 子进程（例如 npm 拉起的 vite）可能在父进程退出后仍占用输出管道
	cmd.WaitDelay = 3 * time.Second

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	p := &localProcess{cmd: cmd, out: newOutputBuffer(), done: make(chan struct{}), seen: make(map[int]bool)}

	// 启动与登记在同一把锁内完成，Close 不会漏掉刚启动的进程
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		pw.Close()
		return nil, ErrClosed
	}
	if err := cmd.Start(); err != nil {
		l.mu.Unlock()
		pw.Close()
		return nil, fmt.Errorf("start %s: %w", command, err)
	}
	l.procs[p] = struct{}{}
	l.mu.Unlock()

	logger.Debug("沙箱命令已启动",
		zap.String("dir", l.dir),
		zap.String("command", command),
		zap.Strings("args", args),
		zap.Int("pid", cmd.Process.Pid))

	go l.scan(pr, p)
	go func() {
		err := cmd.Wait()
		pw.Close()
		p.exitCode, p.err = exitCode(cmd, err)
		close(p.done)

		l.mu.Lock()
		delete(l.procs, p)
		l.mu.Unlock()
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = p.Kill()
		case <-p.done:
		}
	}()

	return p, nil
}

// scan 逐行转发输出，同时从中识别开发服务器地址。
// 同一进程内每个端口只通知一次，重新启动的进程会再次通知。
func (l *Local) scan(r io.Reader, p *localProcess) {
	defer p.out.Close()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		p.out.Write([]byte(line + "\n"))
		port, url, ok := DetectServerURL(line)
		if !ok || p.seen[port] {
			continue
		}
		p.seen[port] = true
		l.emitServerReady(port, url)
	}
}

// Close 结束所有进程并删除沙箱目录
func (l *Local) Close() error {
	l.mu.Lock()
	l.closed = true
	procs := make([]*localProcess, 0, len(l.procs))
	for p := range l.procs {
		procs = append(procs, p)
	}
	l.mu.Unlock()

	for _, p := range procs {
		_ = p.Kill()
		<-p.done
	}
	return os.RemoveAll(l.dir)
}

// DetectServerURL 从一行输出中识别本地服务地址，会先去掉终端颜色控制符
func DetectServerURL(line string) (int, string, bool) {
	m := serverPattern.FindStringSubmatch(ansiPattern.ReplaceAllString(line, ""))
	if m == nil {
		return 0, "", false
	}
	port, err := strconv.Atoi(m[1])
	if err != nil || port <= 0 || port > 65535 {
		return 0, "", false
	}
	return port, m[0], true
}

func exitCode(cmd *exec.Cmd, err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode(), nil
	}
	return -1, err
}

// localProcess 沙箱中运行的一个进程
type localProcess struct {
	cmd      *exec.Cmd
	out      *outputBuffer
	done     chan struct{}
	exitCode int
	err      error

	// seen 只由 scan 协程访问
	seen map[int]bool
}

func (p *localProcess) Output() io.Reader {
	return p.out
}

func (p *localProcess) Wait(ctx context.Context) (int, error) {
	select {
	case <-p.done:
		return p.exitCode, p.err
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// Kill 强制结束整个进程组
func (p *localProcess) Kill() error {
	err := syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	select {
	case <-p.done:
		return nil
	default:
		return p.cmd.Process.Kill()
	}
}

// outputBuffer 无上限的输出缓冲，写入方永不阻塞，读取方在无数据时等待
type outputBuffer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	data   []byte
	closed bool
}

func newOutputBuffer() *outputBuffer {
	b := &outputBuffer{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *outputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p...)
	b.cond.Broadcast()
	return len(p), nil
}

func (b *outputBuffer) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.data) == 0 && !b.closed {
		b.cond.Wait()
	}
	if len(b.data) == 0 {
		return 0, io.EOF
	}
	n := copy(p, b.data)
	b.data = b.data[n:]
	return n, nil
}

func (b *outputBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
}
