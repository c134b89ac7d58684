package services

import (
	"context"
	"errors"
	"io"
	"sync"

	"hyperbuild-web/internal/domain/models"
	"hyperbuild-web/pkg/logger"

	"go.uber.org/zap"
)

// ErrNotReady is returned when the environment has not signalled readiness.
var ErrNotReady = errors.New("environment not ready")

// MountFile wraps the content of a mounted file.
type MountFile struct {
	Contents string `json:"contents" msgpack:"contents"`
}

// MountEntry is either a directory or a file descriptor, never both.
// Directory is a pointer so that an empty folder still encodes as {}.
type MountEntry struct {
	Directory *MountTree `json:"directory,omitempty" msgpack:"directory,omitempty"`
	File      *MountFile `json:"file,omitempty" msgpack:"file,omitempty"`
}

// MountTree maps entry names to descriptors at one directory level.
type MountTree map[string]MountEntry

// Project converts a forest into the mount descriptor format. The result
// depends only on the forest, so projecting the same forest twice yields
// deep-equal trees.
func Project(items []*models.FileItem) MountTree {
	tree := make(MountTree, len(items))
	for _, item := range items {
		if item.IsFolder() {
			children := Project(item.Children)
			tree[item.Name] = MountEntry{Directory: &children}
			continue
		}
		tree[item.Name] = MountEntry{File: &MountFile{Contents: item.Content}}
	}
	return tree
}

// Process is a command spawned inside an Environment.
type Process interface {
	// Output streams combined stdout and stderr until the process exits.
	Output() io.Reader
	// Wait blocks until exit and returns the exit code.
	Wait(ctx context.Context) (int, error)
}

// Environment is the sandbox a project is mounted into and run from.
type Environment interface {
	// Ready is closed once the environment can accept mounts.
	Ready() <-chan struct{}
	Mount(ctx context.Context, tree MountTree) error
	Spawn(ctx context.Context, command string, args ...string) (Process, error)
	// OnServerReady registers fn to be called with the URL of every server
	// a spawned process starts listening on.
	OnServerReady(fn func(port int, url string))
}

// Mounter pushes full-tree snapshots into an Environment.
type Mounter struct {
	env Environment

	mu    sync.Mutex
	count int
}

// NewMounter creates a mounter bound to env.
func NewMounter(env Environment) *Mounter {
	return &Mounter{env: env}
}

// IsReady reports whether the environment has signalled readiness.
func (m *Mounter) IsReady() bool {
	select {
	case <-m.env.Ready():
		return true
	default:
		return false
	}
}

// Sync projects tree and mounts it. Nothing is projected or mounted before
// the environment is ready. Mounts are serialised so a newer snapshot always
// lands after an older one.
func (m *Mounter) Sync(ctx context.Context, tree *FileTree) error {
	if !m.IsReady() {
		return ErrNotReady
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.env.Mount(ctx, Project(tree.Roots())); err != nil {
		return err
	}
	m.count++
	logger.Debug("tree mounted", zap.Int("nodes", tree.Len()), zap.Int("mounts", m.count))
	return nil
}

// Mounts returns how many mounts succeeded so far.
func (m *Mounter) Mounts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}
