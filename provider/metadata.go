package provider

import (
	"os"
	"strconv"
	"syscall"
	"time"
)

// User metadata keys attached to uploaded objects when metadata
// preservation is enabled.
const (
	MetaModTime = "mtime"
	MetaMode    = "mode"
	MetaSize    = "size"
	MetaUID     = "uid"
	MetaGID     = "gid"
)

// UnixFileInfo extends FileInfo with Unix-specific metadata
type UnixFileInfo interface {
	FileInfo
	UID() uint32
	GID() uint32
	Mode() os.FileMode
}

type localFileInfo struct {
	name    string
	size    int64
	isDir   bool
	modTime time.Time
	mode    os.FileMode
}

func (l *localFileInfo) Name() string       { return l.name }
func (l *localFileInfo) Size() int64        { return l.size }
func (l *localFileInfo) IsDir() bool        { return l.isDir }
func (l *localFileInfo) ModTime() time.Time { return l.modTime }
func (l *localFileInfo) UID() uint32        { return 0 }
func (l *localFileInfo) GID() uint32        { return 0 }
func (l *localFileInfo) Mode() os.FileMode  { return l.mode }

type unixFileInfo struct {
	*localFileInfo
	uid uint32
	gid uint32
}

func (u *unixFileInfo) UID() uint32 { return u.uid }
func (u *unixFileInfo) GID() uint32 { return u.gid }

// WrapOSFileInfo converts an os.FileInfo into a UnixFileInfo
func WrapOSFileInfo(info os.FileInfo) UnixFileInfo {
	base := &localFileInfo{
		name:    info.Name(),
		size:    info.Size(),
		isDir:   info.IsDir(),
		modTime: info.ModTime(),
		mode:    info.Mode().Perm(),
	}

	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return base
	}
	return &unixFileInfo{
		localFileInfo: base,
		uid:           st.Uid,
		gid:           st.Gid,
	}
}

// ObjectMetadata renders the source file attributes as object user metadata.
func ObjectMetadata(info FileInfo) map[string]string {
	md := map[string]string{
		MetaModTime: strconv.FormatInt(info.ModTime().Unix(), 10),
		MetaSize:    strconv.FormatInt(info.Size(), 10),
	}
	if u, ok := info.(UnixFileInfo); ok {
		md[MetaMode] = strconv.FormatUint(uint64(u.Mode().Perm()), 8)
		md[MetaUID] = strconv.FormatUint(uint64(u.UID()), 10)
		md[MetaGID] = strconv.FormatUint(uint64(u.GID()), 10)
	}
	return md
}

// statMetadata stats localPath and returns its object metadata.
func statMetadata(localPath string) (map[string]string, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return nil, err
	}
	return ObjectMetadata(WrapOSFileInfo(info)), nil
}

// ApplyMetadata applies the permissions and modification time of fileInfo
// to the file at path.
func ApplyMetadata(path string, fileInfo FileInfo) error {
	if u, ok := fileInfo.(UnixFileInfo); ok && u.Mode() != 0 {
		if err := os.Chmod(path, u.Mode()); err != nil {
			return err
		}
	}

	if !fileInfo.ModTime().IsZero() {
		return os.Chtimes(path, time.Now(), fileInfo.ModTime())
	}
	return nil
}
