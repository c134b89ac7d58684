package application

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sync"

	"hyperbuild-web/internal/domain/services"
	"hyperbuild-web/pkg/logger"

	"go.uber.org/zap"
)

// PreviewPhase 预览的运行阶段
type PreviewPhase string

const (
	PhaseIdle       PreviewPhase = "idle"
	PhaseInstalling PreviewPhase = "installing"
	PhaseStarting   PreviewPhase = "starting"
	PhaseRunning    PreviewPhase = "running"
	PhaseError      PreviewPhase = "error"
)

const maxPreviewLogLines = 200

var (
	localURLPattern = regexp.MustCompile(`Local:\s*(http://localhost:\d+)`)
	ansiPattern     = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)
)

// PreviewStatus 预览状态快照
type PreviewStatus struct {
	Phase PreviewPhase `json:"phase" msgpack:"phase"`
	URL   string       `json:"url,omitempty" msgpack:"url,omitempty"`
	Error string       `json:"error,omitempty" msgpack:"error,omitempty"`
	Logs  []string     `json:"logs,omitempty" msgpack:"logs,omitempty"`
}

// Preview 在沙箱中安装依赖并启动开发服务器
type Preview struct {
	env     services.Environment
	install []string
	dev     []string

	mu      sync.Mutex
	status  PreviewStatus
	started bool
	gen     int
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewPreview 创建预览运行器，install 与 dev 为完整命令行
func NewPreview(env services.Environment, install, dev []string) *Preview {
	p := &Preview{
		env:     env,
		install: install,
		dev:     dev,
		status:  PreviewStatus{Phase: PhaseIdle},
	}
	env.OnServerReady(func(port int, url string) {
		p.setURL(p.currentGen(), url)
	})
	return p
}

// Start 启动预览。已启动时直接跳过并返回 false；reload 会先终止正在运行的进程并重置状态。
func (p *Preview) Start(reload bool) bool {
	p.mu.Lock()
	if p.started && !reload {
		p.mu.Unlock()
		logger.Debug("预览已启动，跳过重复请求")
		return false
	}
	prevCancel, prevDone := p.cancel, p.done

	p.gen++
	gen := p.gen
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.started = true
	p.status = PreviewStatus{Phase: PhaseInstalling}
	done := p.done
	p.mu.Unlock()

	go func() {
		defer close(done)
		if prevCancel != nil {
			prevCancel()
			<-prevDone
		}
		p.run(ctx, gen)
	}()
	return true
}

// Status 返回当前状态
func (p *Preview) Status() PreviewStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.status
	st.Logs = append([]string(nil), p.status.Logs...)
	return st
}

// Stop 终止正在运行的进程并等待后台任务退出
func (p *Preview) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.gen++
	p.started = false
	p.status = PreviewStatus{Phase: PhaseIdle}
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (p *Preview) run(ctx context.Context, gen int) {
	select {
	case <-p.env.Ready():
	case <-ctx.Done():
		return
	}

	code, err := p.exec(ctx, gen, p.install)
	if err != nil {
		p.fail(ctx, gen, err)
		return
	}
	if code != 0 {
		p.fail(ctx, gen, fmt.Errorf("Installation failed with code %d", code))
		return
	}
	logger.Info("依赖安装完成")

	p.update(gen, func(st *PreviewStatus) { st.Phase = PhaseStarting })
	code, err = p.exec(ctx, gen, p.dev)
	if err != nil {
		p.fail(ctx, gen, err)
		return
	}
	if code != 0 {
		p.fail(ctx, gen, fmt.Errorf("Dev server exited with code %d", code))
		return
	}
	p.update(gen, func(st *PreviewStatus) {
		st.Phase = PhaseIdle
		st.URL = ""
	})
}

// exec 启动命令、转发输出并等待退出
func (p *Preview) exec(ctx context.Context, gen int, argv []string) (int, error) {
	if len(argv) == 0 {
		return 0, errors.New("empty command")
	}
	proc, err := p.env.Spawn(ctx, argv[0], argv[1:]...)
	if err != nil {
		return 0, err
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		p.consume(gen, proc.Output())
	}()

	code, err := proc.Wait(ctx)
	if err == nil {
		<-drained
	}
	return code, err
}

func (p *Preview) consume(gen int, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		// 开发服务器会给端口号加粗，先去掉颜色控制符
		line := ansiPattern.ReplaceAllString(scanner.Text(), "")
		p.update(gen, func(st *PreviewStatus) {
			st.Logs = append(st.Logs, line)
			if n := len(st.Logs); n > maxPreviewLogLines {
				st.Logs = st.Logs[n-maxPreviewLogLines:]
			}
		})
		if m := localURLPattern.FindStringSubmatch(line); m != nil {
			p.setURL(gen, m[1])
		}
	}
}

func (p *Preview) fail(ctx context.Context, gen int, err error) {
	if ctx.Err() != nil {
		return
	}
	logger.Warn("预览启动失败", zap.Error(err))
	p.update(gen, func(st *PreviewStatus) {
		st.Phase = PhaseError
		st.Error = err.Error()
	})
}

func (p *Preview) setURL(gen int, url string) {
	p.update(gen, func(st *PreviewStatus) {
		if st.Phase == PhaseStarting || st.Phase == PhaseRunning {
			st.Phase = PhaseRunning
			st.URL = url
		}
	})
}

func (p *Preview) currentGen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen
}

// update 只修改当前一代的状态，被 reload 取代的后台任务不会覆盖新状态
func (p *Preview) update(gen int, fn func(st *PreviewStatus)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		return
	}
	fn(&p.status)
}
