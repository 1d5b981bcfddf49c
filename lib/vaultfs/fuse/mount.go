// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/monovault/lib/vault"
	"github.com/bureau-foundation/monovault/lib/vaultfs"
)

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted. It
	// is created if missing.
	Mountpoint string

	// FS answers every call.
	FS *vaultfs.FS

	// StatfsPath is a path on the filesystem holding the node's
	// databases. statfs on the mount reports that filesystem.
	StatfsPath string

	// AllowOther permits other users to access the mount. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool

	Logger *slog.Logger
}

// mount is shared by every node of one mounted filesystem.
type mount struct {
	fs         *vaultfs.FS
	statfsPath string
	logger     *slog.Logger
}

// Mount mounts the merged vault namespace at options.Mountpoint. The
// caller must Unmount the returned server.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.FS == nil {
		return nil, fmt.Errorf("FS is required")
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	root := &vaultNode{mount: &mount{
		fs:         options.FS,
		statfsPath: options.StatfsPath,
		logger:     options.Logger,
	}}

	// Remote vaults change underneath the kernel, so attributes are
	// only trusted briefly.
	entryTimeout := 1 * time.Second
	attrTimeout := 1 * time.Second
	negativeTimeout := 100 * time.Millisecond

	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "monovault",
			Name:       "monovault",
			AllowOther: options.AllowOther,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}
	options.Logger.Info("vault filesystem mounted",
		"mountpoint", options.Mountpoint,
		"local_vault", options.FS.LocalVault(),
	)
	return server, nil
}

// vaultNode is every directory and file of the mount, the root
// included.
type vaultNode struct {
	gofuse.Inode
	mount *mount
}

var (
	_ gofuse.InodeEmbedder = (*vaultNode)(nil)
	_ gofuse.NodeLookuper  = (*vaultNode)(nil)
	_ gofuse.NodeGetattrer = (*vaultNode)(nil)
	_ gofuse.NodeSetattrer = (*vaultNode)(nil)
	_ gofuse.NodeReaddirer = (*vaultNode)(nil)
	_ gofuse.NodeOpener    = (*vaultNode)(nil)
	_ gofuse.NodeCreater   = (*vaultNode)(nil)
	_ gofuse.NodeMkdirer   = (*vaultNode)(nil)
	_ gofuse.NodeUnlinker  = (*vaultNode)(nil)
	_ gofuse.NodeRmdirer   = (*vaultNode)(nil)
	_ gofuse.NodeRenamer   = (*vaultNode)(nil)
	_ gofuse.NodeStatfser  = (*vaultNode)(nil)
)

// mountPath is this node's "/"-rooted path in the namespace.
func (n *vaultNode) mountPath() string {
	return "/" + n.Path(nil)
}

func (n *vaultNode) childPath(name string) string {
	parent := n.mountPath()
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

func (n *vaultNode) newChild(ctx context.Context, node vaultfs.Node, out *fuse.EntryOut) (*gofuse.Inode, *vaultNode) {
	n.mount.fillAttr(node, &out.Attr)
	mode := uint32(syscall.S_IFREG)
	if node.Entry.IsDir() {
		mode = syscall.S_IFDIR
	}
	child := &vaultNode{mount: n.mount}
	return n.NewInode(ctx, child, gofuse.StableAttr{Mode: mode}), child
}

func (n *vaultNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	path := n.childPath(name)
	node, err := n.mount.fs.Lookup(ctx, path)
	if err != nil {
		return nil, n.mount.errno("lookup", path, err)
	}
	inode, _ := n.newChild(ctx, node, out)
	return inode, 0
}

func (n *vaultNode) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	path := n.mountPath()
	node, err := n.mount.fs.Lookup(ctx, path)
	if err != nil {
		return n.mount.errno("getattr", path, err)
	}
	if handle, ok := f.(*fileHandle); ok {
		if size, buffered := handle.bufferedSize(); buffered {
			node.Entry.Size = size
		}
	}
	n.mount.fillAttr(node, &out.Attr)
	return 0
}

// Setattr supports size changes only; modes, owners and times are
// fixed.
func (n *vaultNode) Setattr(ctx context.Context, f gofuse.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	path := n.mountPath()
	if size, ok := in.GetSize(); ok {
		if handle, isHandle := f.(*fileHandle); isHandle && handle.writable {
			if errno := handle.truncate(size); errno != 0 {
				return errno
			}
		} else if size > math.MaxInt64 {
			return syscall.EFBIG
		} else if _, err := n.mount.fs.Truncate(ctx, path, int64(size)); err != nil {
			return n.mount.errno("truncate", path, err)
		}
	}
	return n.Getattr(ctx, f, out)
}

func (n *vaultNode) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	path := n.mountPath()
	listing, err := n.mount.fs.Readdir(ctx, path)
	if err != nil {
		return nil, n.mount.errno("readdir", path, err)
	}
	entries := make([]fuse.DirEntry, 0, len(listing))
	for _, entry := range listing {
		mode := uint32(syscall.S_IFREG)
		if entry.Kind == vault.KindDirectory {
			mode = syscall.S_IFDIR
		}
		entries = append(entries, fuse.DirEntry{Name: entry.Name, Mode: mode})
	}
	return gofuse.NewListDirStream(entries), 0
}

func (n *vaultNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	path := n.mountPath()
	handle := &fileHandle{mount: n.mount, node: n}
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) == 0 {
		return handle, 0, 0
	}
	node, err := n.mount.fs.Lookup(ctx, path)
	if err != nil {
		return nil, 0, n.mount.errno("open", path, err)
	}
	if node.Entry.IsDir() {
		return nil, 0, syscall.EISDIR
	}
	if node.Entry.Vault != n.mount.fs.LocalVault() {
		return nil, 0, syscall.EACCES
	}
	handle.writable = true
	if flags&syscall.O_TRUNC != 0 {
		handle.buffer = []byte{}
		handle.dirty = true
	} else {
		data, err := n.mount.fs.Read(ctx, path, 0, int(node.Entry.Size))
		if err != nil {
			return nil, 0, n.mount.errno("open", path, err)
		}
		handle.buffer = data
	}
	// The kernel page cache would hide buffered writes from Getattr.
	return handle, fuse.FOPEN_DIRECT_IO, 0
}

func (n *vaultNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, gofuse.FileHandle, uint32, syscall.Errno) {
	path := n.childPath(name)
	node, err := n.mount.fs.Create(ctx, path)
	if err != nil {
		return nil, nil, 0, n.mount.errno("create", path, err)
	}
	inode, child := n.newChild(ctx, node, out)
	handle := &fileHandle{
		mount:    n.mount,
		node:     child,
		writable: true,
		buffer:   []byte{},
	}
	return inode, handle, fuse.FOPEN_DIRECT_IO, 0
}

func (n *vaultNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	path := n.childPath(name)
	node, err := n.mount.fs.Mkdir(ctx, path)
	if err != nil {
		return nil, n.mount.errno("mkdir", path, err)
	}
	inode, _ := n.newChild(ctx, node, out)
	return inode, 0
}

func (n *vaultNode) Unlink(ctx context.Context, name string) syscall.Errno {
	return n.remove(ctx, name, false)
}

func (n *vaultNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	return n.remove(ctx, name, true)
}

func (n *vaultNode) remove(ctx context.Context, name string, directory bool) syscall.Errno {
	path := n.childPath(name)
	node, err := n.mount.fs.Lookup(ctx, path)
	if err != nil {
		return n.mount.errno("remove", path, err)
	}
	switch {
	case directory && !node.Entry.IsDir():
		return syscall.ENOTDIR
	case !directory && node.Entry.IsDir():
		return syscall.EISDIR
	}
	if err := n.mount.fs.Delete(ctx, path); err != nil {
		return n.mount.errno("remove", path, err)
	}
	return 0
}

func (n *vaultNode) Rename(ctx context.Context, name string, newParent gofuse.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	// RENAME_EXCHANGE and RENAME_NOREPLACE are not supported.
	if flags != 0 {
		return syscall.EINVAL
	}
	parent, ok := newParent.(*vaultNode)
	if !ok {
		return syscall.EXDEV
	}
	from := n.childPath(name)
	to := parent.childPath(newName)
	if err := n.mount.fs.Rename(ctx, from, to); err != nil {
		return n.mount.errno("rename", from, err)
	}
	return 0
}

func (n *vaultNode) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	if n.mount.statfsPath == "" {
		return 0
	}
	var stat unix.Statfs_t
	if err := unix.Statfs(n.mount.statfsPath, &stat); err != nil {
		n.mount.logger.Warn("statfs failed", "path", n.mount.statfsPath, "error", err)
		return syscall.EIO
	}
	out.Blocks = stat.Blocks
	out.Bfree = stat.Bfree
	out.Bavail = stat.Bavail
	out.Files = stat.Files
	out.Ffree = stat.Ffree
	out.Bsize = uint32(stat.Bsize)
	out.NameLen = vault.MaxNameLength
	out.Frsize = uint32(stat.Frsize)
	return 0
}

// fillAttr sets mode, size and times from a resolved node. Remote
// vaults are read-only.
func (m *mount) fillAttr(node vaultfs.Node, out *fuse.Attr) {
	writable := node.Entry.Vault == m.fs.LocalVault()
	if node.Entry.IsDir() {
		out.Mode = syscall.S_IFDIR | 0o555
		if writable {
			out.Mode = syscall.S_IFDIR | 0o755
		}
		out.Nlink = 2
	} else {
		out.Mode = syscall.S_IFREG | 0o444
		if writable {
			out.Mode = syscall.S_IFREG | 0o644
		}
		out.Nlink = 1
		out.Size = uint64(node.Entry.Size)
		out.Blocks = (out.Size + 511) / 512
	}
	if !node.Entry.Modified.IsZero() {
		modified := node.Entry.Modified
		out.SetTimes(&modified, &modified, &modified)
	}
	out.Owner = fuse.Owner{Uid: uint32(os.Getuid()), Gid: uint32(os.Getgid())}
}

// errno maps a dispatch error to the value returned to the kernel.
// Unclassified errors are logged and become EIO.
func (m *mount) errno(operation, path string, err error) syscall.Errno {
	switch {
	case errors.Is(err, vault.ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, vault.ErrPermissionDenied):
		return syscall.EACCES
	case errors.Is(err, vault.ErrAlreadyExists):
		return syscall.EEXIST
	case errors.Is(err, vault.ErrIsDirectory):
		return syscall.EISDIR
	case errors.Is(err, vault.ErrNotDirectory):
		return syscall.ENOTDIR
	case errors.Is(err, vault.ErrNotEmpty):
		return syscall.ENOTEMPTY
	case errors.Is(err, vault.ErrNameTooLong):
		return syscall.ENAMETOOLONG
	case errors.Is(err, vault.ErrInvalidPath):
		return syscall.EINVAL
	case errors.Is(err, vault.ErrFileTooLarge):
		return syscall.EFBIG
	case errors.Is(err, context.Canceled):
		return syscall.EINTR
	}
	m.logger.Error("filesystem call failed", "operation", operation, "path", path, "error", err)
	return syscall.EIO
}
