package core

// LayerIdentity names a single layer. A layer is either pre-materialized at
// a local Path, or named by a (Directory, Digest, Size) tuple whose commit
// file will be downloaded into Directory.
type LayerIdentity struct {
	// Path is set when the layer is already a local file; Directory,
	// Digest, and Size are ignored in that case.
	Path string

	// Directory is where this layer's commit file lives (and, once
	// materialized, where "<Directory>/overlaybd.commit" will appear).
	Directory string
	// Digest identifies the layer's exact bytes.
	Digest Digest
	// Size is the remote blob's size in bytes.
	Size int64
}

// IsLocal reports whether this identity names a pre-materialized local
// file rather than a remote-backed layer.
func (id LayerIdentity) IsLocal() bool { return id.Path != "" }

// Key returns the string used by the Shared Layer Cache to deduplicate
// opens of this identity: the local path for pre-materialized layers, the
// directory for remote-backed ones.
func (id LayerIdentity) Key() string {
	if id.IsLocal() {
		return id.Path
	}
	return id.Directory
}

// CommitPath returns the path of this layer's on-disk commit file. Its
// presence is the sole authority on whether the layer is materialized.
func (id LayerIdentity) CommitPath() string {
	return id.Directory + "/overlaybd.commit"
}

// DownloadPath returns the transient path the download coordinator writes
// to before the atomic rename into CommitPath.
func (id LayerIdentity) DownloadPath() string {
	return id.CommitPath() + ".download"
}

// MetaPath returns the path of the best-effort JSON sidecar recording this
// layer's verified metadata, written alongside the commit file.
func (id LayerIdentity) MetaPath() string {
	return id.CommitPath() + ".meta"
}

// LowerStackKey joins an ordered list of lower-layer keys into the
// composite key the Shared Layer Cache's second table is keyed by.
func LowerStackKey(keys []string) string {
	var b []byte
	for _, k := range keys {
		b = append(b, k...)
		b = append(b, ';')
	}
	return string(b)
}
