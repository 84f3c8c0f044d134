package types

// Activity names registered by the worker and called by the workflow.
const (
	ActivityExtractDump    = "Activities.ExtractDump"
	ActivityPublishOutputs = "Activities.PublishOutputs"
	ActivityLoadKVStore    = "Activities.LoadKVStore"
	ActivityCleanupOutputs = "Activities.CleanupOutputs"
)

// ExtractParams is the input of ExtractWorkflow. Empty fields fall back to
// the worker's configuration.
type ExtractParams struct {
	InputURI      string   `json:"input_uri"` // file:// or s3://, optionally .gz/.bz2
	EntityTypes   []string `json:"entity_types,omitempty"`
	Lang          string   `json:"lang,omitempty"`
	Format        string   `json:"format,omitempty"` // JSONLines|MessagePack
	ProcessImages bool     `json:"process_images,omitempty"`
	// OutputSubdir is relative to the worker's scratch root. Defaults to the workflow run id.
	OutputSubdir string `json:"output_subdir,omitempty"`
	// PublishURI receives every output file (s3://bucket/prefix or file://dir).
	PublishURI string `json:"publish_uri,omitempty"`
	// LoadKV also loads the KV store into a badger database next to the outputs.
	LoadKV bool `json:"load_kv,omitempty"`
	// KeepOutputs skips removing the local outputs after a successful publish.
	KeepOutputs bool `json:"keep_outputs,omitempty"`
}

// ExtractStats mirrors the coordinator's counters.
type ExtractStats struct {
	Lines      int64 `json:"lines"`
	Bytes      int64 `json:"bytes"`
	Blank      int64 `json:"blank"`
	Oversize   int64 `json:"oversize"`
	Malformed  int64 `json:"malformed"`
	Incomplete int64 `json:"incomplete"`
	Unlabeled  int64 `json:"unlabeled"`
	Unmatched  int64 `json:"unmatched"`
	Matched    int64 `json:"matched"`
	Written    int64 `json:"written"`
}

type ExtractResult struct {
	OutputDir    string            `json:"output_dir"`
	Files        map[string]string `json:"files"`
	Stats        ExtractStats      `json:"stats"`
	Flushes      int               `json:"flushes"`
	CachedLabels int               `json:"cached_labels"`
	ElapsedMS    int64             `json:"elapsed_ms"`
	Published    []string          `json:"published,omitempty"`
	KVEntries    uint64            `json:"kv_entries,omitempty"`
}

type PublishParams struct {
	Files   map[string]string `json:"files"`
	DestURI string            `json:"dest_uri"`
}

type PublishResult struct {
	URIs []string `json:"uris"`
}

// LoadKVParams loads KVPath into a badger database at DBSubdir under the scratch root.
type LoadKVParams struct {
	KVPath   string `json:"kv_path"`
	DBSubdir string `json:"db_subdir"`
}

type LoadKVResult struct {
	Entries uint64 `json:"entries"`
	DBPath  string `json:"db_path"`
}

// CleanupParams instructs the cleanup activity which subdir to remove.
type CleanupParams struct {
	ScratchSubdir string `json:"scratch_subdir"`
}
