package job

// JobStats 聚合了作业状态的统计信息，用于 stats 接口与健康观察。
type JobStats struct {
	Total           int   `json:"total"`
	Queued          int   `json:"queued"`
	Running         int   `json:"running"`
	Done            int   `json:"done"`
	Failed          int   `json:"failed"`
	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`
}
